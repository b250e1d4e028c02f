package storage

import (
	"context"
	"time"

	"github.com/dshills/contactsearch/pkg/types"
)

// Storage defines the interface for persisting and querying contacts,
// their embeddings and per-user search history
type Storage interface {
	// Contact operations
	UpsertContact(ctx context.Context, contact *types.Contact) error
	GetContact(ctx context.Context, contactID string) (*types.Contact, error)
	SoftDeleteContact(ctx context.Context, userID, contactID string) error
	ListContacts(ctx context.Context, userID string, filter ContactFilter) ([]*types.Contact, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, contactID string) (*Embedding, error)
	DeleteEmbedding(ctx context.Context, contactID string) error

	// Search operations
	SearchText(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error)
	SearchFuzzy(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error)
	SearchVector(ctx context.Context, userID string, vector []float32, opts VectorSearchOptions) ([]VectorResult, error)

	// History operations
	InsertHistory(ctx context.Context, entry *types.SearchHistoryEntry, maxEntries int) error
	ListHistory(ctx context.Context, userID string, limit int) ([]*types.SearchHistoryEntry, error)
	DeleteHistory(ctx context.Context, userID, entryID string) error
	ClearHistory(ctx context.Context, userID string) (int, error)

	// Status operations
	GetStatus(ctx context.Context, userID string) (*UserStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Embedding is the stored vector for a contact
type Embedding struct {
	ContactID string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	UpdatedAt time.Time
}

// ContactFilter narrows ListContacts
type ContactFilter struct {
	// StaleEmbeddingOnly keeps contacts with no embedding or an embedding
	// older than the contact's last update
	StaleEmbeddingOnly bool
	Limit              int // 0 means no limit
}

// VectorSearchOptions controls a nearest-neighbor query
type VectorSearchOptions struct {
	Threshold float64 // Minimum similarity (1 - distance/2)
	Limit     int
	ExcludeID string // Contact to leave out, typically a find-similar seed
}

// TextResult represents a result from lexical search
type TextResult struct {
	Contact *types.Contact
	Score   float64 // Higher is better
	Matches int     // Contacts the query matched before the limit; same on every row
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	Contact    *types.Contact
	Distance   float64 // Cosine distance in [0, 2]
	Similarity float64 // 1 - Distance/2
	Matches    int     // Contacts above the threshold before the limit; same on every row
}

// UserStatus contains statistics about one user's searchable data
type UserStatus struct {
	UserID          string
	ContactsCount   int
	EmbeddingsCount int
	StaleEmbeddings int
	HistoryCount    int
	SchemaVersion   string
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	VectorExtension    bool
	FTSIndexesBuilt    bool
}
