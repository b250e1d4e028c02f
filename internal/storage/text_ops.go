package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/contactsearch/pkg/types"
)

// ftsColumns maps searchable fields onto contacts_fts columns.
// Only these names ever reach a MATCH expression.
var ftsColumns = map[types.Field][]string{
	types.FieldName:    {"first_name", "last_name"},
	types.FieldEmail:   {"email"},
	types.FieldCompany: {"company"},
	types.FieldTags:    {"tags"},
	types.FieldNotes:   {"notes"},
}

// unsafeQueryChars matches anything outside word characters, whitespace, '@', '.' and '-'
var unsafeQueryChars = regexp.MustCompile(`[^\p{L}\p{N}_\s@.\-]`)

// SanitizeQuery strips characters with meaning to FTS5 from a raw query
func SanitizeQuery(query string) string {
	return strings.TrimSpace(unsafeQueryChars.ReplaceAllString(query, " "))
}

// queryTokens splits a sanitized query into tokens carrying at least one letter or digit
func queryTokens(sanitized string) []string {
	tokens := make([]string, 0)
	for _, tok := range strings.Fields(sanitized) {
		if strings.IndexFunc(tok, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// BuildMatchExpression builds an FTS5 MATCH expression requiring every query
// token as a prefix phrase within the selected fields. It returns "" when the
// query has no searchable tokens.
func BuildMatchExpression(query string, fields []types.Field) (string, error) {
	tokens := queryTokens(SanitizeQuery(query))
	if len(tokens) == 0 {
		return "", nil
	}

	if len(fields) == 0 {
		fields = types.AllFields
	}
	columns := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		cols, ok := ftsColumns[f]
		if !ok {
			return "", fmt.Errorf("%w: unknown field %q", types.ErrValidation, f)
		}
		columns = append(columns, cols...)
	}

	phrases := make([]string, len(tokens))
	for i, tok := range tokens {
		phrases[i] = `"` + tok + `"*`
	}

	return fmt.Sprintf("{%s} : (%s)", strings.Join(columns, " "), strings.Join(phrases, " AND ")), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	match, err := BuildMatchExpression(query, fields)
	if err != nil {
		return nil, err
	}
	if match == "" || limit <= 0 {
		return []TextResult{}, nil
	}

	// bm25() is negative with lower being better; negate so higher is better
	sqlQuery := `
		SELECT ` + contactColumns + `,
			-bm25(contacts_fts) AS score
		FROM contacts_fts
		INNER JOIN contacts c ON c.seq = contacts_fts.rowid
		LEFT JOIN contact_embeddings e ON e.contact_id = c.id
		WHERE contacts_fts MATCH ?
		AND c.user_id = ?
		AND c.deleted_at IS NULL
		ORDER BY score DESC, c.id ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, match, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0)
	for rows.Next() {
		var score float64
		contact, err := scanContact(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, TextResult{Contact: contact, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches := len(results)
	if matches == limit {
		if err := q.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM contacts_fts
			INNER JOIN contacts c ON c.seq = contacts_fts.rowid
			WHERE contacts_fts MATCH ?
			AND c.user_id = ?
			AND c.deleted_at IS NULL
		`, match, userID).Scan(&matches); err != nil {
			return nil, fmt.Errorf("failed to count FTS matches: %w", err)
		}
	}
	setTextMatches(results, matches)
	return results, nil
}

func setTextMatches(results []TextResult, matches int) {
	for i := range results {
		results[i].Matches = matches
	}
}

// searchFuzzy scores every live contact of the user by fuzzy similarity on
// the selected fields and keeps those above FuzzyThreshold
func searchFuzzy(ctx context.Context, q querier, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []TextResult{}, nil
	}
	if len(fields) == 0 {
		fields = types.AllFields
	}
	for _, f := range fields {
		if !f.IsValid() {
			return nil, fmt.Errorf("%w: unknown field %q", types.ErrValidation, f)
		}
	}

	contacts, err := listContacts(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	results := make([]TextResult, 0)
	for _, c := range contacts {
		best := 0.0
		for _, f := range fields {
			for _, v := range f.Values(c) {
				if s := FuzzySimilarity(query, v); s > best {
					best = s
				}
			}
		}
		if best > FuzzyThreshold {
			results = append(results, TextResult{Contact: c, Score: best})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Contact.ID < results[j].Contact.ID
	})
	matches := len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	setTextMatches(results, matches)
	return results, nil
}

// listContacts loads a user's live contacts without going through SQLiteStorage
func listContacts(ctx context.Context, q querier, userID string) ([]*types.Contact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		LEFT JOIN contact_embeddings e ON e.contact_id = c.id
		WHERE c.user_id = ? AND c.deleted_at IS NULL
		ORDER BY c.seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]*types.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
