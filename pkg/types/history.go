package types

import "time"

// SearchHistoryEntry records one executed query. Entries are append-only.
type SearchHistoryEntry struct {
	ID          string
	UserID      string
	Query       string
	ResultCount int
	CreatedAt   time.Time
}

// DedupeHistory keeps the first occurrence of each query text, so callers
// passing entries newest-first get the most recent occurrence.
func DedupeHistory(entries []*SearchHistoryEntry) []*SearchHistoryEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]*SearchHistoryEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Query]; ok {
			continue
		}
		seen[e.Query] = struct{}{}
		out = append(out, e)
	}
	return out
}
