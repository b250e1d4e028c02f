package storage

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xrash/smetrics"
)

// FuzzyThreshold is the minimum similarity for a fuzzy match to qualify
const FuzzyThreshold = 0.3

// trigrams returns the set of padded three-character grams of s.
// Each alphanumeric word is lowercased and padded with two leading blanks
// and one trailing blank before extraction.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(s) {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// TrigramSimilarity returns |A∩B| / |A∪B| over the trigram sets of a and b
func TrigramSimilarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// EditSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), counted
// in runes and case-insensitive
func EditSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	ca, cb, ok := runeAlphabet(a, b)
	if !ok {
		return 0
	}
	dist := smetrics.WagnerFischer(ca, cb, 1, 1, 1)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// runeAlphabet rewrites a and b over a shared one-byte code per distinct rune,
// so a byte-wise distance counts rune edits. ok is false when the pair holds
// more distinct runes than a byte can number.
func runeAlphabet(a, b string) (string, string, bool) {
	codes := make(map[rune]byte)
	encode := func(s string) (string, bool) {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			c, seen := codes[r]
			if !seen {
				if len(codes) > math.MaxUint8 {
					return "", false
				}
				c = byte(len(codes))
				codes[r] = c
			}
			out = append(out, c)
		}
		return string(out), true
	}

	ca, ok := encode(a)
	if !ok {
		return "", "", false
	}
	cb, ok := encode(b)
	if !ok {
		return "", "", false
	}
	return ca, cb, true
}

// minEditRunes is the shortest query that may match through edit similarity
const minEditRunes = 4

// FuzzySimilarity scores query against a field value by trigram similarity.
// A single-word query of at least minEditRunes runes may also match a value
// word of about the same length by edit similarity, so that transposition
// typos ("jhon") still reach their target word.
func FuzzySimilarity(query, value string) float64 {
	query = strings.TrimSpace(query)
	if query == "" || strings.TrimSpace(value) == "" {
		return 0
	}

	best := TrigramSimilarity(query, value)

	n := utf8.RuneCountInString(query)
	if n < minEditRunes || strings.IndexFunc(query, unicode.IsSpace) >= 0 {
		return best
	}
	for _, word := range words(value) {
		if diff := utf8.RuneCountInString(word) - n; diff < -1 || diff > 1 {
			continue
		}
		if s := EditSimilarity(query, word); s > best {
			best = s
		}
	}
	return best
}

// words splits s into lowercased alphanumeric words
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
