package searcher

import (
	"sort"
	"strings"
	"time"

	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// Additive lexical boosts. They accumulate and are never capped.
const (
	BoostExactName    = 1.0
	BoostExactEmail   = 0.9
	BoostExactCompany = 0.8
	BoostPrefixName   = 0.5
	BoostRecent       = 0.2
	BoostTagMatch     = 0.3
	BoostPriorityTag  = 0.5

	// RecentWindow is how recently a contact must have been updated to get BoostRecent
	RecentWindow = 30 * 24 * time.Hour
)

// priorityTags earn BoostPriorityTag regardless of the query
var priorityTags = []string{"important", "vip"}

// Boost returns score plus every boost the contact earns for query.
// Comparisons are case-insensitive on the trimmed query.
func Boost(score float64, c *types.Contact, query string, now time.Time) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || c == nil {
		return score
	}

	first := strings.ToLower(c.FirstName)
	last := strings.ToLower(c.LastName)

	if first == q || last == q {
		score += BoostExactName
	}
	if strings.ToLower(c.Email) == q {
		score += BoostExactEmail
	}
	if strings.ToLower(c.Company) == q {
		score += BoostExactCompany
	}
	if (first != "" && strings.HasPrefix(first, q)) || (last != "" && strings.HasPrefix(last, q)) {
		score += BoostPrefixName
	}
	if !c.UpdatedAt.IsZero() && now.Sub(c.UpdatedAt) <= RecentWindow {
		score += BoostRecent
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			score += BoostTagMatch
			break
		}
	}
	for _, tag := range priorityTags {
		if c.HasTag(tag) {
			score += BoostPriorityTag
			break
		}
	}

	return score
}

// RankLexical boosts raw lexical results and orders them by the boosted
// score, highest first. Equal scores keep their storage order.
func RankLexical(results []storage.TextResult, query string, now time.Time) []types.RankedResult {
	ranked := make([]types.RankedResult, len(results))
	for i, r := range results {
		ranked[i] = types.RankedResult{
			Contact:        r.Contact,
			RelevanceScore: Boost(r.Score, r.Contact, query, now),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	types.AssignRanks(ranked)
	return ranked
}

// RankVector converts vector results, already ordered by similarity, into ranked results
func RankVector(results []storage.VectorResult) []types.RankedResult {
	ranked := make([]types.RankedResult, len(results))
	for i, r := range results {
		ranked[i] = types.RankedResult{
			Contact:         r.Contact,
			SimilarityScore: r.Similarity,
			Rank:            i + 1,
		}
	}
	return ranked
}

// PositionScores returns a copy of lexical with each RelevanceScore replaced
// by its rank-position proxy 1 - index/total.
func PositionScores(lexical []types.RankedResult) []types.RankedResult {
	out := make([]types.RankedResult, len(lexical))
	total := float64(len(lexical))
	for i, r := range lexical {
		r.RelevanceScore = 1 - float64(i)/total
		out[i] = r
	}
	return out
}

// Fuse unions lexical and semantic results by contact ID and orders them by
//
//	combined = similarity*weight + relevance*(1-weight)
//
// A contact missing from one list scores 0 in that dimension. Equal combined
// scores follow the dominant list's order (semantic when weight > 0.5,
// lexical otherwise) and then the other list's; a contact absent from a list
// sorts after those present in it.
func Fuse(lexical, semantic []types.RankedResult, weight float64) []types.RankedResult {
	type entry struct {
		result             types.RankedResult
		lexicalPos, semPos int
	}
	absent := len(lexical) + len(semantic)
	entries := make([]entry, 0, absent)
	index := make(map[string]int, absent)

	for i, r := range lexical {
		if _, ok := index[r.Contact.ID]; ok {
			continue
		}
		index[r.Contact.ID] = len(entries)
		entries = append(entries, entry{
			result: types.RankedResult{
				Contact:        r.Contact,
				RelevanceScore: r.RelevanceScore,
			},
			lexicalPos: i,
			semPos:     absent,
		})
	}

	for i, r := range semantic {
		if j, ok := index[r.Contact.ID]; ok {
			if entries[j].semPos == absent {
				entries[j].result.SimilarityScore = r.SimilarityScore
				entries[j].semPos = i
			}
			continue
		}
		index[r.Contact.ID] = len(entries)
		entries = append(entries, entry{
			result: types.RankedResult{
				Contact:         r.Contact,
				SimilarityScore: r.SimilarityScore,
			},
			lexicalPos: absent,
			semPos:     i,
		})
	}

	for i := range entries {
		r := &entries[i].result
		r.CombinedScore = r.SimilarityScore*weight + r.RelevanceScore*(1-weight)
	}

	semanticFirst := weight > 0.5
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.result.CombinedScore != b.result.CombinedScore {
			return a.result.CombinedScore > b.result.CombinedScore
		}
		if semanticFirst && a.semPos != b.semPos {
			return a.semPos < b.semPos
		}
		if a.lexicalPos != b.lexicalPos {
			return a.lexicalPos < b.lexicalPos
		}
		return a.semPos < b.semPos
	})

	fused := make([]types.RankedResult, len(entries))
	for i, e := range entries {
		fused[i] = e.result
	}
	types.AssignRanks(fused)
	return fused
}
