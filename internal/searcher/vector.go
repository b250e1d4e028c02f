package searcher

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/contactsearch/internal/metrics"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// runSemantic embeds the query through the gateway and runs nearest-neighbor
// search. It also returns how many contacts cleared the threshold.
func (s *Searcher) runSemantic(ctx context.Context, vr *validRequest) ([]types.RankedResult, int, error) {
	vector, err := s.gateway.GenerateEmbedding(ctx, vr.query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}

	raw, err := s.store.SearchVector(ctx, vr.userID, vector, storage.VectorSearchOptions{
		Threshold: vr.threshold,
		Limit:     candidateLimit(vr.limit),
	})
	if err != nil {
		return nil, 0, storeError("vector search", err)
	}

	return RankVector(raw), vectorMatches(raw), nil
}

func vectorMatches(raw []storage.VectorResult) int {
	if len(raw) == 0 {
		return 0
	}
	return max(len(raw), raw[0].Matches)
}

// FindSimilar returns the contacts closest to the seed contact's own
// embedding, leaving the seed out. The seed must belong to userID and have
// an embedding.
func (s *Searcher) FindSimilar(ctx context.Context, contactID, userID string, limit int) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		metrics.ObserveSearch(string(ModeSimilar), statusLabel(err), time.Since(start), n)
	}()

	if err := requireID("contact_id", contactID); err != nil {
		return nil, err
	}
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	limit, err = s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	seed, err := s.store.GetContact(ctx, contactID)
	if err != nil {
		return nil, storeError("load seed contact", err)
	}
	if seed.UserID != userID {
		return nil, fmt.Errorf("%w: contact %s belongs to another user", types.ErrUnauthorized, contactID)
	}
	if !seed.HasEmbedding() {
		return nil, fmt.Errorf("%w: contact %s has no embedding yet", types.ErrPrecondition, contactID)
	}

	raw, err := s.store.SearchVector(ctx, userID, seed.Embedding, storage.VectorSearchOptions{
		Threshold: s.opts.SimilarityThreshold,
		Limit:     candidateLimit(limit),
		ExcludeID: seed.ID,
	})
	if err != nil {
		return nil, storeError("vector search", err)
	}

	results := RankVector(raw)
	total := vectorMatches(raw)
	if len(results) > limit {
		results = results[:limit]
	}

	return &SearchResponse{
		Results:  results,
		Total:    total,
		Query:    contactID,
		Mode:     ModeSimilar,
		Duration: time.Since(start),
	}, nil
}
