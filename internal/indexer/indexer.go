package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contactsearch/internal/embedder"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/metrics"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// ErrBackfillInProgress is returned when a backfill is already running on this Indexer
var ErrBackfillInProgress = fmt.Errorf("%w: embedding backfill already in progress", types.ErrPrecondition)

// Indexer coordinates the embedding pipeline: list stale contacts -> embed -> store
type Indexer struct {
	storage storage.Storage
	gateway *embedder.Gateway
	logger  *zap.Logger
	lock    IndexLock
}

// Config contains configuration for a backfill run
type Config struct {
	Workers   int  // Number of concurrent batches (default: runtime.NumCPU())
	BatchSize int  // Contacts per provider call and transaction (default: 50)
	Force     bool // Re-embed every contact, not only stale ones
}

// Statistics contains statistics about a backfill run
type Statistics struct {
	ContactsScanned  int
	ContactsEmbedded int
	ContactsFailed   int
	Batches          int
	Duration         time.Duration
	ErrorMessages    []string
}

// New creates a new Indexer instance
func New(store storage.Storage, gateway *embedder.Gateway, log *zap.Logger) *Indexer {
	return &Indexer{
		storage: store,
		gateway: gateway,
		logger:  logger.OrNop(log),
	}
}

// EmbedContacts generates embeddings for the user's contacts that have none
// or whose embedding predates their last update. A failed batch is counted
// and reported in the statistics; the run goes on with the other batches.
func (idx *Indexer) EmbedContacts(ctx context.Context, userID string, config *Config) (*Statistics, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", types.ErrValidation)
	}
	if !idx.gateway.IsAvailable() {
		return nil, fmt.Errorf("%w: no embedding provider configured", types.ErrPrecondition)
	}

	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}

	if !idx.lock.TryAcquire() {
		return nil, ErrBackfillInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()

	contacts, err := idx.storage.ListContacts(ctx, userID, storage.ContactFilter{StaleEmbeddingOnly: !cfg.Force})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list contacts: %w", types.ErrDependency, err)
	}

	stats := &Statistics{
		ContactsScanned: len(contacts),
		ErrorMessages:   make([]string, 0),
	}

	if err := idx.embedBatches(ctx, contacts, cfg, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("embedding backfill finished",
		zap.String("user_id", userID),
		zap.Int("scanned", stats.ContactsScanned),
		zap.Int("embedded", stats.ContactsEmbedded),
		zap.Int("failed", stats.ContactsFailed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// embedBatches runs batches concurrently, at most cfg.Workers at a time
func (idx *Indexer) embedBatches(ctx context.Context, contacts []*types.Contact, cfg Config, stats *Statistics) error {
	var (
		embedded int32
		failed   int32
		batches  int32
		mu       sync.Mutex // Protect stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := 0; i < len(contacts); i += cfg.BatchSize {
		batch := contacts[i:min(i+cfg.BatchSize, len(contacts))]

		g.Go(func() error {
			atomic.AddInt32(&batches, 1)
			err := idx.embedBatch(gctx, batch)
			if err == nil {
				atomic.AddInt32(&embedded, int32(len(batch)))
				metrics.BackfillContactsTotal.WithLabelValues("embedded").Add(float64(len(batch)))
				return nil
			}

			// Cancellation stops the run; anything else fails only this batch
			if gctx.Err() != nil {
				return gctx.Err()
			}
			atomic.AddInt32(&failed, int32(len(batch)))
			metrics.BackfillContactsTotal.WithLabelValues("failed").Add(float64(len(batch)))
			idx.logger.Warn("embedding batch failed",
				zap.Int("contacts", len(batch)),
				zap.String("first_contact_id", batch[0].ID),
				zap.Error(err),
			)
			mu.Lock()
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("batch at %s: %v", batch[0].ID, err))
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.ContactsEmbedded = int(embedded)
	stats.ContactsFailed = int(failed)
	stats.Batches = int(batches)
	return nil
}

// embedBatch embeds one batch with a single provider call and stores the
// vectors in one transaction
func (idx *Indexer) embedBatch(ctx context.Context, batch []*types.Contact) error {
	vectors, err := idx.gateway.EmbedContacts(ctx, batch)
	if err != nil {
		return err
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i, contact := range batch {
		emb := &storage.Embedding{
			ContactID: contact.ID,
			Vector:    vectors[i],
			Provider:  idx.gateway.Provider(),
			Model:     idx.gateway.Model(),
			UpdatedAt: now,
		}
		if err := tx.UpsertEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("failed to store embedding for %s: %w", contact.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Err joins the batch errors, or returns nil when every batch succeeded
func (s *Statistics) Err() error {
	if len(s.ErrorMessages) == 0 {
		return nil
	}
	errs := make([]error, len(s.ErrorMessages))
	for i, msg := range s.ErrorMessages {
		errs[i] = errors.New(msg)
	}
	return errors.Join(errs...)
}
