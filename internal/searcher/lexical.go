package searcher

import (
	"context"

	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// runLexical queries the full-text index, or the trigram matcher when fuzzy
// is set, and applies the lexical boosts. It also returns how many contacts
// matched before the candidate pool limit.
func (s *Searcher) runLexical(ctx context.Context, vr *validRequest) ([]types.RankedResult, int, error) {
	var (
		raw []storage.TextResult
		err error
	)
	limit := candidateLimit(vr.limit)

	if vr.fuzzy {
		raw, err = s.store.SearchFuzzy(ctx, vr.userID, vr.query, vr.fields, limit)
	} else {
		raw, err = s.store.SearchText(ctx, vr.userID, vr.query, vr.fields, limit)
	}
	if err != nil {
		return nil, 0, storeError("lexical search", err)
	}

	matches := len(raw)
	if len(raw) > 0 {
		matches = max(matches, raw[0].Matches)
	}
	return RankLexical(raw, vr.query, s.now()), matches, nil
}
