// Package searcher implements hybrid contact search combining lexical
// matching and vector similarity.
//
// Three request modes are supported:
//   - Lexical: FTS5 full-text match, or trigram/edit-distance matching when Fuzzy is set
//   - Semantic: cosine similarity between the query embedding and contact embeddings
//   - Hybrid: both engines concurrently, fused by a weighted average
//
// # Basic Usage
//
//	s := searcher.New(store, gateway, searcher.OptionsFrom(cfg.Search), logger)
//	defer s.Close()
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    UserID: "user-1",
//	    Query:  "john",
//	    Mode:   searcher.ModeHybrid,
//	    Limit:  10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.3f)\n", r.Rank, r.Contact.FullName(), r.CombinedScore)
//	}
//
// # Ranking
//
// Lexical results get additive boosts on top of the index score: exact name,
// email or company match, name prefix, recent update, matching tag and the
// "important"/"vip" tags. Boosts stack without a cap.
//
// Hybrid results are the union of both lists by contact ID:
//
//	combined = similarity*w + relevance*(1-w)
//
// A contact found by only one engine scores 0 in the other dimension. With
// Options.PositionalFusion the relevance term is the rank proxy
// 1 - index/total instead of the boosted score.
//
// # Errors
//
// Errors carry a kind from pkg/types and are tested with errors.Is:
// ErrValidation before any engine runs, ErrPrecondition when semantic search
// is requested without an embedding provider or a find-similar seed has no
// embedding, ErrNotFound and ErrUnauthorized for seeds, and ErrDependency for
// data store and provider failures. Nothing is retried here.
//
// # History
//
// Every accepted search is recorded asynchronously after the response is
// built. History failures are logged and counted, never returned. Close waits
// for pending writes.
package searcher
