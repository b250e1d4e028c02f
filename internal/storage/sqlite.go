package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/contactsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrWrongOwner is returned when an operation targets another user's contact
	ErrWrongOwner = types.ErrUnauthorized
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer; also keeps :memory: on one connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Contact operations

// contactColumns is the projection shared by every contact query.
// Queries must alias contacts as c and LEFT JOIN contact_embeddings as e.
const contactColumns = `
	c.id, c.user_id, c.first_name, c.last_name, c.email, c.phone,
	c.company, c.position, c.location, c.notes, c.tags,
	c.created_at, c.updated_at, c.deleted_at, e.updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanContact reads contactColumns followed by any extra destinations
func scanContact(row rowScanner, extra ...interface{}) (*types.Contact, error) {
	var c types.Contact
	var tags string
	var deletedAt, embeddedAt sql.NullTime

	dest := []interface{}{
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Company, &c.Position, &c.Location, &c.Notes, &tags,
		&c.CreatedAt, &c.UpdatedAt, &deletedAt, &embeddedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for contact %s: %w", c.ID, err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	if embeddedAt.Valid {
		t := embeddedAt.Time
		c.EmbeddingUpdatedAt = &t
	}
	return &c, nil
}

// upsertContactWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertContactWithQuerier(ctx context.Context, q querier, contact *types.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if err := contact.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	contact.Tags = types.NormalizeTags(contact.Tags)
	tags, err := json.Marshal(contact.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = now
	}

	var deletedAt interface{}
	if contact.DeletedAt != nil {
		deletedAt = contact.DeletedAt.UTC()
	}

	query := `
		INSERT INTO contacts (id, user_id, first_name, last_name, email, phone,
			company, position, location, notes, tags, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			company = excluded.company,
			position = excluded.position,
			location = excluded.location,
			notes = excluded.notes,
			tags = excluded.tags,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
		WHERE contacts.user_id = excluded.user_id
	`
	result, err := q.ExecContext(ctx, query,
		contact.ID, contact.UserID, contact.FirstName, contact.LastName, contact.Email, contact.Phone,
		contact.Company, contact.Position, contact.Location, contact.Notes, string(tags),
		contact.CreatedAt.UTC(), contact.UpdatedAt.UTC(), deletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: contact %s belongs to another user", ErrWrongOwner, contact.ID)
	}
	return nil
}

// UpsertContact inserts or replaces a contact. Ownership of an existing contact cannot change.
func (s *SQLiteStorage) UpsertContact(ctx context.Context, contact *types.Contact) error {
	return s.upsertContactWithQuerier(ctx, s.querier(), contact)
}

// getContactWithQuerier loads a live contact with its embedding vector
func (s *SQLiteStorage) getContactWithQuerier(ctx context.Context, q querier, contactID string) (*types.Contact, error) {
	query := `
		SELECT ` + contactColumns + `, e.vector
		FROM contacts c
		LEFT JOIN contact_embeddings e ON e.contact_id = c.id
		WHERE c.id = ? AND c.deleted_at IS NULL
	`
	var blob []byte
	contact, err := scanContact(q.QueryRowContext(ctx, query, contactID), &blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		contact.Embedding = deserializeVector(blob)
	}
	return contact, nil
}

// GetContact returns a non-deleted contact by ID, including its embedding
func (s *SQLiteStorage) GetContact(ctx context.Context, contactID string) (*types.Contact, error) {
	return s.getContactWithQuerier(ctx, s.querier(), contactID)
}

// softDeleteContactWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) softDeleteContactWithQuerier(ctx context.Context, q querier, userID, contactID string) error {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT user_id FROM contacts WHERE id = ? AND deleted_at IS NULL`, contactID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrWrongOwner
	}

	_, err = q.ExecContext(ctx, `UPDATE contacts SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), contactID)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

// SoftDeleteContact marks a contact deleted; it disappears from every search
func (s *SQLiteStorage) SoftDeleteContact(ctx context.Context, userID, contactID string) error {
	return s.softDeleteContactWithQuerier(ctx, s.querier(), userID, contactID)
}

// listContactsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listContactsWithQuerier(ctx context.Context, q querier, userID string, filter ContactFilter) ([]*types.Contact, error) {
	all, err := listContacts(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	contacts := make([]*types.Contact, 0, len(all))
	for _, contact := range all {
		// Timestamps are compared here rather than in SQL because the stored
		// text form does not sort reliably across fractional-second widths
		if filter.StaleEmbeddingOnly && !embeddingStale(contact) {
			continue
		}
		contacts = append(contacts, contact)
		if filter.Limit > 0 && len(contacts) >= filter.Limit {
			break
		}
	}
	return contacts, nil
}

// ListContacts returns a user's non-deleted contacts in insertion order
func (s *SQLiteStorage) ListContacts(ctx context.Context, userID string, filter ContactFilter) ([]*types.Contact, error) {
	return s.listContactsWithQuerier(ctx, s.querier(), userID, filter)
}

// embeddingStale reports whether a contact needs a (re)generated embedding
func embeddingStale(c *types.Contact) bool {
	return c.EmbeddingUpdatedAt == nil || c.EmbeddingUpdatedAt.Before(c.UpdatedAt)
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: empty embedding vector", types.ErrValidation)
	}
	query := `
		INSERT INTO contact_embeddings (contact_id, vector, dimension, provider, model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			updated_at = excluded.updated_at
	`
	if embedding.UpdatedAt.IsZero() {
		embedding.UpdatedAt = time.Now().UTC()
	}
	embedding.Dimension = len(embedding.Vector)

	_, err := q.ExecContext(ctx, query,
		embedding.ContactID, serializeVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, embedding.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// UpsertEmbedding replaces a contact's embedding wholesale
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

// getEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, contactID string) (*Embedding, error) {
	query := `
		SELECT contact_id, vector, dimension, provider, model, updated_at
		FROM contact_embeddings
		WHERE contact_id = ?
	`
	var embedding Embedding
	var blob []byte
	err := q.QueryRowContext(ctx, query, contactID).Scan(
		&embedding.ContactID, &blob, &embedding.Dimension,
		&embedding.Provider, &embedding.Model, &embedding.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	embedding.Vector = deserializeVector(blob)
	return &embedding, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, contactID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), contactID)
}

// deleteEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteEmbeddingWithQuerier(ctx context.Context, q querier, contactID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM contact_embeddings WHERE contact_id = ?`, contactID)
	return err
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, contactID string) error {
	return s.deleteEmbeddingWithQuerier(ctx, s.querier(), contactID)
}

// Search operations

func (s *SQLiteStorage) SearchText(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	return searchText(ctx, s.querier(), userID, query, fields, limit)
}

func (s *SQLiteStorage) SearchFuzzy(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	return searchFuzzy(ctx, s.querier(), userID, query, fields, limit)
}

func (s *SQLiteStorage) SearchVector(ctx context.Context, userID string, vector []float32, opts VectorSearchOptions) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), userID, vector, opts)
}

// History operations

// insertHistoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertHistoryWithQuerier(ctx context.Context, q querier, entry *types.SearchHistoryEntry, maxEntries int) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO search_history (id, user_id, query_text, result_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.Query, entry.ResultCount, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	if maxEntries <= 0 {
		return nil
	}

	// Evict everything older than the newest maxEntries for this user
	_, err = q.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE user_id = ? AND seq NOT IN (
			SELECT seq FROM search_history WHERE user_id = ? ORDER BY seq DESC LIMIT ?
		)
	`, entry.UserID, entry.UserID, maxEntries)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// InsertHistory appends an entry and evicts the user's oldest entries beyond maxEntries
func (s *SQLiteStorage) InsertHistory(ctx context.Context, entry *types.SearchHistoryEntry, maxEntries int) error {
	return s.insertHistoryWithQuerier(ctx, s.querier(), entry, maxEntries)
}

// listHistoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listHistoryWithQuerier(ctx context.Context, q querier, userID string, limit int) ([]*types.SearchHistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, query_text, result_count, created_at
		FROM search_history
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*types.SearchHistoryEntry, 0)
	for rows.Next() {
		var e types.SearchHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &e.ResultCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListHistory returns a user's entries, newest first
func (s *SQLiteStorage) ListHistory(ctx context.Context, userID string, limit int) ([]*types.SearchHistoryEntry, error) {
	return s.listHistoryWithQuerier(ctx, s.querier(), userID, limit)
}

// deleteHistoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteHistoryWithQuerier(ctx context.Context, q querier, userID, entryID string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM search_history WHERE id = ? AND user_id = ?`, entryID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteHistory(ctx context.Context, userID, entryID string) error {
	return s.deleteHistoryWithQuerier(ctx, s.querier(), userID, entryID)
}

// clearHistoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) clearHistoryWithQuerier(ctx context.Context, q querier, userID string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM search_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ClearHistory removes all of a user's entries and reports how many were removed
func (s *SQLiteStorage) ClearHistory(ctx context.Context, userID string) (int, error) {
	return s.clearHistoryWithQuerier(ctx, s.querier(), userID)
}

// Status operations

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, userID string) (*UserStatus, error) {
	status := &UserStatus{
		UserID: userID,
		Health: HealthStatus{
			DatabaseAccessible: true,
			VectorExtension:    VectorExtensionAvailable,
		},
	}

	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND deleted_at IS NULL`, userID,
	).Scan(&status.ContactsCount)
	if err != nil {
		status.Health.DatabaseAccessible = false
		return status, fmt.Errorf("failed to count contacts: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contact_embeddings e
		INNER JOIN contacts c ON c.id = e.contact_id
		WHERE c.user_id = ? AND c.deleted_at IS NULL
	`, userID).Scan(&status.EmbeddingsCount)
	if err != nil {
		return status, fmt.Errorf("failed to count embeddings: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_history WHERE user_id = ?`, userID,
	).Scan(&status.HistoryCount)
	if err != nil {
		return status, fmt.Errorf("failed to count history: %w", err)
	}

	var ftsCount int
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'contacts_fts'`,
	).Scan(&ftsCount)
	if err != nil {
		return status, fmt.Errorf("failed to check FTS index: %w", err)
	}
	status.Health.FTSIndexesBuilt = ftsCount > 0

	version, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return status, err
	}
	status.SchemaVersion = version.String()

	stale, err := s.listContactsWithQuerier(ctx, q, userID, ContactFilter{StaleEmbeddingOnly: true})
	if err != nil {
		return status, err
	}
	status.StaleEmbeddings = len(stale)

	return status, nil
}

// GetStatus reports per-user counts and store health
func (s *SQLiteStorage) GetStatus(ctx context.Context, userID string) (*UserStatus, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return &UserStatus{UserID: userID}, fmt.Errorf("database not accessible: %w", err)
	}
	return s.getStatusWithQuerier(ctx, s.querier(), userID)
}

// Transaction implementations. Every call goes through the transaction's
// querier: the pool holds a single connection, so touching s.db here would block.

func (t *sqliteTx) UpsertContact(ctx context.Context, contact *types.Contact) error {
	return t.storage.upsertContactWithQuerier(ctx, t.querier(), contact)
}

func (t *sqliteTx) GetContact(ctx context.Context, contactID string) (*types.Contact, error) {
	return t.storage.getContactWithQuerier(ctx, t.querier(), contactID)
}

func (t *sqliteTx) SoftDeleteContact(ctx context.Context, userID, contactID string) error {
	return t.storage.softDeleteContactWithQuerier(ctx, t.querier(), userID, contactID)
}

func (t *sqliteTx) ListContacts(ctx context.Context, userID string, filter ContactFilter) ([]*types.Contact, error) {
	return t.storage.listContactsWithQuerier(ctx, t.querier(), userID, filter)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, contactID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), contactID)
}

func (t *sqliteTx) DeleteEmbedding(ctx context.Context, contactID string) error {
	return t.storage.deleteEmbeddingWithQuerier(ctx, t.querier(), contactID)
}

func (t *sqliteTx) SearchText(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	return searchText(ctx, t.querier(), userID, query, fields, limit)
}

func (t *sqliteTx) SearchFuzzy(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]TextResult, error) {
	return searchFuzzy(ctx, t.querier(), userID, query, fields, limit)
}

func (t *sqliteTx) SearchVector(ctx context.Context, userID string, vector []float32, opts VectorSearchOptions) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), userID, vector, opts)
}

func (t *sqliteTx) InsertHistory(ctx context.Context, entry *types.SearchHistoryEntry, maxEntries int) error {
	return t.storage.insertHistoryWithQuerier(ctx, t.querier(), entry, maxEntries)
}

func (t *sqliteTx) ListHistory(ctx context.Context, userID string, limit int) ([]*types.SearchHistoryEntry, error) {
	return t.storage.listHistoryWithQuerier(ctx, t.querier(), userID, limit)
}

func (t *sqliteTx) DeleteHistory(ctx context.Context, userID, entryID string) error {
	return t.storage.deleteHistoryWithQuerier(ctx, t.querier(), userID, entryID)
}

func (t *sqliteTx) ClearHistory(ctx context.Context, userID string) (int, error) {
	return t.storage.clearHistoryWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) GetStatus(ctx context.Context, userID string) (*UserStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
