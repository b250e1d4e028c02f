package searcher

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dshills/contactsearch/pkg/types"
)

// MinQueryLength is the shortest accepted query after trimming
const MinQueryLength = 2

// SearchMode selects which engines run for a request
type SearchMode string

const (
	ModeLexical  SearchMode = "lexical"  // Full-text or trigram matching only
	ModeSemantic SearchMode = "semantic" // Vector similarity only
	ModeHybrid   SearchMode = "hybrid"   // Both, fused by weighted average
)

// ParseMode converts a raw mode name. Empty selects lexical.
func ParseMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeLexical, nil
	case ModeLexical, ModeSemantic, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown search mode %q", types.ErrValidation, s)
	}
}

// SearchRequest is one search call. Zero values select configured defaults;
// Threshold and SemanticWeight are pointers so that 0 stays expressible.
type SearchRequest struct {
	UserID         string
	Query          string
	Mode           SearchMode
	Fields         []string // Subset of name, email, company, tags, notes; empty means all
	Fuzzy          bool
	Limit          int
	Threshold      *float64
	SemanticWeight *float64
	Highlight      bool
}

// validRequest is a SearchRequest after validation with defaults resolved
type validRequest struct {
	userID    string
	query     string
	mode      SearchMode
	fields    []types.Field
	fuzzy     bool
	limit     int
	threshold float64
	weight    float64
	highlight bool
}

// validate checks a request against the configured bounds before any engine runs
func (s *Searcher) validate(req SearchRequest) (*validRequest, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", types.ErrValidation)
	}

	query, err := validateQuery(req.Query)
	if err != nil {
		return nil, err
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	fields, err := types.ParseFields(req.Fields)
	if err != nil {
		return nil, err
	}

	limit, err := s.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	threshold := s.opts.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if err := checkUnitRange("threshold", threshold); err != nil {
			return nil, err
		}
	}

	weight := s.opts.SemanticWeight
	if req.SemanticWeight != nil {
		weight = *req.SemanticWeight
		if err := checkUnitRange("semantic_weight", weight); err != nil {
			return nil, err
		}
	}

	return &validRequest{
		userID:    req.UserID,
		query:     query,
		mode:      mode,
		fields:    fields,
		fuzzy:     req.Fuzzy,
		limit:     limit,
		threshold: threshold,
		weight:    weight,
		highlight: req.Highlight,
	}, nil
}

// validateQuery trims the query and enforces the minimum length in characters
func validateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", fmt.Errorf("%w: query cannot be empty", types.ErrValidation)
	}
	if utf8.RuneCountInString(q) < MinQueryLength {
		return "", fmt.Errorf("%w: query must be at least %d characters", types.ErrValidation, MinQueryLength)
	}
	return q, nil
}

// resolveLimit applies the default for 0 and rejects values outside [1, MaxLimit]
func (s *Searcher) resolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return s.opts.DefaultLimit, nil
	case limit < 1:
		return 0, fmt.Errorf("%w: limit must be >= 1, got %d", types.ErrValidation, limit)
	case limit > s.opts.MaxLimit:
		return 0, fmt.Errorf("%w: limit must be <= %d, got %d", types.ErrValidation, s.opts.MaxLimit, limit)
	}
	return limit, nil
}

func checkUnitRange(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be between 0 and 1, got %v", types.ErrValidation, name, v)
	}
	return nil
}
