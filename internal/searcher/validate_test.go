package searcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/pkg/types"
)

func ptr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	s := New(nil, nil, DefaultOptions(), nil)

	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{"minimal", SearchRequest{UserID: "u", Query: "jo"}, false},
		{"missing user", SearchRequest{Query: "john"}, true},
		{"empty query", SearchRequest{UserID: "u", Query: "   "}, true},
		{"one character", SearchRequest{UserID: "u", Query: "j"}, true},
		{"one character padded", SearchRequest{UserID: "u", Query: "  j  "}, true},
		{"two multibyte characters", SearchRequest{UserID: "u", Query: "éé"}, false},
		{"unknown field", SearchRequest{UserID: "u", Query: "john", Fields: []string{"name", "phone"}}, true},
		{"known fields", SearchRequest{UserID: "u", Query: "john", Fields: []string{"Name", "tags"}}, false},
		{"negative limit", SearchRequest{UserID: "u", Query: "john", Limit: -1}, true},
		{"limit above max", SearchRequest{UserID: "u", Query: "john", Limit: 101}, true},
		{"limit at max", SearchRequest{UserID: "u", Query: "john", Limit: 100}, false},
		{"threshold zero", SearchRequest{UserID: "u", Query: "john", Threshold: ptr(0)}, false},
		{"threshold above one", SearchRequest{UserID: "u", Query: "john", Threshold: ptr(1.1)}, true},
		{"weight negative", SearchRequest{UserID: "u", Query: "john", SemanticWeight: ptr(-0.1)}, true},
		{"weight NaN", SearchRequest{UserID: "u", Query: "john", SemanticWeight: ptr(math.NaN())}, true},
		{"unknown mode", SearchRequest{UserID: "u", Query: "john", Mode: "vector"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.validate(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	opts := DefaultOptions()
	s := New(nil, nil, opts, nil)

	vr, err := s.validate(SearchRequest{UserID: "u", Query: "  John Doe  "})
	require.NoError(t, err)

	assert.Equal(t, "John Doe", vr.query)
	assert.Equal(t, ModeLexical, vr.mode)
	assert.Equal(t, types.AllFields, vr.fields)
	assert.Equal(t, opts.DefaultLimit, vr.limit)
	assert.Equal(t, opts.SimilarityThreshold, vr.threshold)
	assert.Equal(t, opts.SemanticWeight, vr.weight)

	vr, err = s.validate(SearchRequest{UserID: "u", Query: "jo", SemanticWeight: ptr(0), Threshold: ptr(1)})
	require.NoError(t, err)
	assert.Zero(t, vr.weight)
	assert.Equal(t, 1.0, vr.threshold)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]SearchMode{
		"":          ModeLexical,
		"lexical":   ModeLexical,
		" Semantic": ModeSemantic,
		"HYBRID":    ModeHybrid,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("similar")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 20, opts.DefaultLimit)
	assert.Equal(t, 100, opts.MaxLimit)
	assert.Equal(t, 0.7, opts.SimilarityThreshold)
	assert.Equal(t, 0.5, opts.SemanticWeight)
	assert.Equal(t, 50, opts.HistoryCap)
	assert.Equal(t, DefaultSnippetContext, opts.SnippetContext)
}
