package searcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/metrics"
	"github.com/dshills/contactsearch/pkg/types"
)

// RecordQuery appends a history entry for userID, evicting the oldest
// entries beyond the configured cap.
func (s *Searcher) RecordQuery(ctx context.Context, userID, query string, resultCount int) error {
	if err := requireID("user_id", userID); err != nil {
		return err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrValidation)
	}

	entry := &types.SearchHistoryEntry{
		UserID:      userID,
		Query:       query,
		ResultCount: resultCount,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertHistory(ctx, entry, s.opts.HistoryCap); err != nil {
		return storeError("record query", err)
	}
	return nil
}

// recordAsync writes history without holding up the response. Failures are
// logged and dropped.
func (s *Searcher) recordAsync(ctx context.Context, userID, query string, resultCount int) {
	// Detach from the request so the write survives its cancellation
	hctx := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(hctx, s.opts.HistoryTimeout)
		defer cancel()

		if err := s.RecordQuery(ctx, userID, query, resultCount); err != nil {
			metrics.HistoryWriteFailuresTotal.Inc()
			s.logger.Warn("failed to record search history",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}()
}

// ListRecentQueries returns the user's most recent distinct queries, newest first
func (s *Searcher) ListRecentQueries(ctx context.Context, userID string, limit int) ([]*types.SearchHistoryEntry, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	limit, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	// The store keeps at most HistoryCap rows per user, so read them all and dedupe
	entries, err := s.store.ListHistory(ctx, userID, 0)
	if err != nil {
		return nil, storeError("list history", err)
	}

	entries = types.DedupeHistory(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// DeleteQuery removes one history entry owned by userID
func (s *Searcher) DeleteQuery(ctx context.Context, userID, queryID string) error {
	if err := requireID("user_id", userID); err != nil {
		return err
	}
	if err := requireID("query_id", queryID); err != nil {
		return err
	}
	if err := s.store.DeleteHistory(ctx, userID, queryID); err != nil {
		return storeError("delete query", err)
	}
	return nil
}

// ClearQueries removes all of the user's history and returns how many entries went
func (s *Searcher) ClearQueries(ctx context.Context, userID string) (int, error) {
	if err := requireID("user_id", userID); err != nil {
		return 0, err
	}
	n, err := s.store.ClearHistory(ctx, userID)
	if err != nil {
		return 0, storeError("clear history", err)
	}
	return n, nil
}

// Flush waits for pending history writes
func (s *Searcher) Flush() {
	s.pending.Wait()
}

// Close waits for pending history writes. The store is owned by the caller.
func (s *Searcher) Close() error {
	s.Flush()
	return nil
}
