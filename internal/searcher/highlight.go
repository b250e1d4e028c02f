package searcher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/contactsearch/pkg/types"
)

// Highlight markup
const (
	MarkOpen  = "<mark>"
	MarkClose = "</mark>"
	Ellipsis  = "..."

	// DefaultSnippetContext is the number of characters kept on each side of a match
	DefaultSnippetContext = 50
)

// queryPattern matches the literal query case-insensitively
func queryPattern(query string) *regexp.Regexp {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))
}

func markAll(re *regexp.Regexp, text string) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return MarkOpen + m + MarkClose
	})
}

// HighlightText wraps every case-insensitive occurrence of query in text with
// MarkOpen and MarkClose. Removing the markers yields text unchanged.
func HighlightText(text, query string) string {
	re := queryPattern(query)
	if re == nil {
		return text
	}
	return markAll(re, text)
}

// StripMarks removes highlight markers
func StripMarks(text string) string {
	return strings.NewReplacer(MarkOpen, "", MarkClose, "").Replace(text)
}

// Snippet returns a window of text around the first match of query with
// context characters on each side, marked, and with Ellipsis where the
// window stops short of the text boundary. Without a match it returns an
// unmarked prefix of 2*context characters.
func Snippet(text, query string, context int) string {
	if context <= 0 {
		context = DefaultSnippetContext
	}
	runes := []rune(text)

	var loc []int
	re := queryPattern(query)
	if re != nil {
		loc = re.FindStringIndex(text)
	}
	if loc == nil {
		if len(runes) <= 2*context {
			return text
		}
		return string(runes[:2*context]) + Ellipsis
	}

	start := utf8.RuneCountInString(text[:loc[0]])
	end := start + utf8.RuneCountInString(text[loc[0]:loc[1]])
	from := max(0, start-context)
	to := min(len(runes), end+context)

	var b strings.Builder
	if from > 0 {
		b.WriteString(Ellipsis)
	}
	b.WriteString(markAll(re, string(runes[from:to])))
	if to < len(runes) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

// Highlighted field keys
const (
	HighlightFirstName = "first_name"
	HighlightLastName  = "last_name"
	HighlightEmail     = "email"
	HighlightCompany   = "company"
	HighlightPosition  = "position"
	HighlightLocation  = "location"
	HighlightTags      = "tags"
	HighlightNotes     = "notes"
)

// Highlight fills Highlights on every result. Short fields appear only when
// they contain the query. Notes longer than 2*context are reduced to a
// snippet, matched or not.
func Highlight(results []types.RankedResult, query string, context int) {
	if context <= 0 {
		context = DefaultSnippetContext
	}
	re := queryPattern(query)

	for i := range results {
		c := results[i].Contact
		h := make(map[string]string)
		results[i].Highlights = h
		if c == nil {
			continue
		}

		short := map[string]string{
			HighlightFirstName: c.FirstName,
			HighlightLastName:  c.LastName,
			HighlightEmail:     c.Email,
			HighlightCompany:   c.Company,
			HighlightPosition:  c.Position,
			HighlightLocation:  c.Location,
			HighlightTags:      strings.Join(c.Tags, ", "),
		}
		for key, value := range short {
			if value != "" && re != nil && re.MatchString(value) {
				h[key] = markAll(re, value)
			}
		}

		switch {
		case c.Notes == "":
		case utf8.RuneCountInString(c.Notes) > 2*context:
			h[HighlightNotes] = Snippet(c.Notes, query, context)
		case re != nil && re.MatchString(c.Notes):
			h[HighlightNotes] = markAll(re, c.Notes)
		}
	}
}
