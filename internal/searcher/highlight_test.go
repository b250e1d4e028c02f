package searcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/pkg/types"
)

func TestHighlightText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  string
	}{
		{"single", "John Doe", "john", "<mark>John</mark> Doe"},
		{"every occurrence", "john.doe@john.io", "JOHN", "<mark>john</mark>.doe@<mark>john</mark>.io"},
		{"metacharacters are literal", "a.b (c+d)", "(c+d)", "a.b <mark>(c+d)</mark>"},
		{"dot is not a wildcard", "axb a.b", "a.b", "axb <mark>a.b</mark>"},
		{"no match", "Jane Smith", "bob", "Jane Smith"},
		{"empty query", "Jane", "  ", "Jane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighlightText(tt.text, tt.query))
		})
	}
}

func TestHighlightText_RoundTrip(t *testing.T) {
	texts := []string{
		"John Doe",
		"john.doe@example.com",
		"Müller & Söhne GmbH, München",
		"[vip] (call back) $100 *urgent*",
		"",
	}
	queries := []string{"john", "ü", "$1", "(call", "*", "back) $"}

	for _, text := range texts {
		for _, q := range queries {
			assert.Equal(t, text, StripMarks(HighlightText(text, q)), "text=%q query=%q", text, q)
		}
	}
}

func TestSnippet(t *testing.T) {
	prefix := strings.Repeat("a", 80)
	suffix := strings.Repeat("b", 80)
	notes := prefix + " met John at the conference " + suffix

	t.Run("window with ellipses", func(t *testing.T) {
		got := Snippet(notes, "john", 10)
		assert.True(t, strings.HasPrefix(got, Ellipsis))
		assert.True(t, strings.HasSuffix(got, Ellipsis))
		assert.Contains(t, got, "<mark>John</mark>")

		inner := StripMarks(strings.TrimSuffix(strings.TrimPrefix(got, Ellipsis), Ellipsis))
		assert.Equal(t, 10+len("John")+10, len([]rune(inner)))
		assert.Contains(t, notes, inner)
	})

	t.Run("window reaching the start", func(t *testing.T) {
		got := Snippet("John called about the offer "+suffix, "john", 10)
		assert.True(t, strings.HasPrefix(got, "<mark>John</mark>"))
		assert.True(t, strings.HasSuffix(got, Ellipsis))
	})

	t.Run("window reaching the end", func(t *testing.T) {
		got := Snippet(prefix+" ask John", "john", 10)
		assert.True(t, strings.HasPrefix(got, Ellipsis))
		assert.True(t, strings.HasSuffix(got, "<mark>John</mark>"))
	})

	t.Run("no match returns unmarked prefix", func(t *testing.T) {
		got := Snippet(notes, "zebra", 10)
		assert.Equal(t, notes[:20]+Ellipsis, got)
		assert.NotContains(t, got, MarkOpen)
	})

	t.Run("short text without match", func(t *testing.T) {
		assert.Equal(t, "short", Snippet("short", "zebra", 10))
	})

	t.Run("multibyte text", func(t *testing.T) {
		text := strings.Repeat("é", 30) + "Jöhn" + strings.Repeat("ü", 30)
		got := Snippet(text, "jöhn", 5)
		assert.Equal(t, Ellipsis+"ééééé<mark>Jöhn</mark>üüüüü"+Ellipsis, got)
	})
}

func TestHighlight(t *testing.T) {
	longNotes := strings.Repeat("x", 120) + " knows John well " + strings.Repeat("y", 120)
	results := []types.RankedResult{
		{Contact: &types.Contact{
			ID:        "c1",
			FirstName: "John",
			LastName:  "Doe",
			Email:     "john.doe@x.com",
			Company:   "Acme",
			Tags:      []string{"johnny-cash-fan", "vip"},
			Notes:     longNotes,
		}},
		{Contact: &types.Contact{
			ID:        "c2",
			FirstName: "Jhon",
			Notes:     "short note",
		}},
		{Contact: &types.Contact{
			ID:    "c3",
			Notes: strings.Repeat("z", 150),
		}},
	}

	Highlight(results, "john", 50)

	h := results[0].Highlights
	assert.Equal(t, "<mark>John</mark>", h[HighlightFirstName])
	assert.Equal(t, "<mark>john</mark>.doe@x.com", h[HighlightEmail])
	assert.Equal(t, "<mark>john</mark>ny-cash-fan, vip", h[HighlightTags])
	assert.NotContains(t, h, HighlightLastName)
	assert.NotContains(t, h, HighlightCompany)
	assert.Contains(t, h[HighlightNotes], "<mark>John</mark>")
	assert.True(t, strings.HasPrefix(h[HighlightNotes], Ellipsis))

	require.NotNil(t, results[1].Highlights)
	assert.Empty(t, results[1].Highlights, "fuzzy hit without a literal match has nothing to mark")

	assert.Equal(t, strings.Repeat("z", 100)+Ellipsis, results[2].Highlights[HighlightNotes])
}
