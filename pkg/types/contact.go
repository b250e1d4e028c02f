package types

import (
	"strings"
	"time"
)

// Contact is a single contact owned by exactly one user
type Contact struct {
	// Identification
	ID     string
	UserID string

	// Display fields
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	Position  string
	Location  string

	// Free text
	Notes string
	Tags  []string // Unordered, unique

	// Timestamps
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // Nullable - set when soft-deleted

	// Embedding is nil until the backfill has generated one
	Embedding          []float32
	EmbeddingUpdatedAt *time.Time
}

// FullName returns first and last name joined by a space
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasEmbedding reports whether a vector has been generated for the contact
func (c *Contact) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// IsDeleted reports whether the contact has been soft-deleted
func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// HasTag reports whether the contact carries the tag (case-insensitive)
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NormalizeTags trims, drops empties and removes case-insensitive duplicates,
// keeping the first spelling seen.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Validate checks the invariants a stored contact must satisfy
func (c *Contact) Validate() error {
	if c.ID == "" {
		return ErrInvalidContactID
	}
	if c.UserID == "" {
		return ErrMissingOwner
	}
	return nil
}
