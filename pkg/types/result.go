package types

// RankedResult is a contact with the scores that ordered it
type RankedResult struct {
	Contact *Contact
	Rank    int // Position in result set (1-based)

	// Scoring. Which fields are set depends on the search mode.
	RelevanceScore  float64 // Lexical score after boosts, unbounded
	SimilarityScore float64 // Vector similarity in [0, 1]
	CombinedScore   float64 // Fused score (hybrid only)

	// Highlights maps field name to marked-up text. Nil unless requested.
	Highlights map[string]string
}

// Validate checks if the ranked result is well formed
func (r *RankedResult) Validate() error {
	if r.Contact == nil {
		return ErrMissingContact
	}
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	if r.SimilarityScore < 0 || r.SimilarityScore > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// AssignRanks sets 1-based ranks following slice order
func AssignRanks(results []RankedResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}
