package types

import (
	"fmt"
	"strings"
)

// Field identifies a searchable contact field
type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldCompany Field = "company"
	FieldTags    Field = "tags"
	FieldNotes   Field = "notes"
)

// AllFields lists every searchable field in canonical order
var AllFields = []Field{FieldName, FieldEmail, FieldCompany, FieldTags, FieldNotes}

// IsValid reports whether f is one of the known searchable fields
func (f Field) IsValid() bool {
	switch f {
	case FieldName, FieldEmail, FieldCompany, FieldTags, FieldNotes:
		return true
	}
	return false
}

// Values returns the text values of the field on a contact.
// Name yields first and last name separately plus the full name.
func (f Field) Values(c *Contact) []string {
	switch f {
	case FieldName:
		return []string{c.FirstName, c.LastName, c.FullName()}
	case FieldEmail:
		return []string{c.Email}
	case FieldCompany:
		return []string{c.Company}
	case FieldTags:
		return c.Tags
	case FieldNotes:
		return []string{c.Notes}
	}
	return nil
}

// ParseFields converts raw field names into Fields. An empty input selects
// all fields. Duplicates are collapsed.
func ParseFields(names []string) ([]Field, error) {
	if len(names) == 0 {
		return AllFields, nil
	}
	seen := make(map[Field]struct{}, len(names))
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		if !f.IsValid() {
			return nil, fmt.Errorf("%w: unknown field %q", ErrValidation, name)
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	return fields, nil
}
