package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/embedder"
	"github.com/dshills/contactsearch/internal/indexer"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// seedContact is one record of the seed file
type seedContact struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Company   string   `json:"company"`
	Position  string   `json:"position"`
	Location  string   `json:"location"`
	Notes     string   `json:"notes"`
	Tags      []string `json:"tags"`
}

type seedOptions struct {
	configPath string
	userID     string
	file       string
	embed      bool
	force      bool
}

func main() {
	if err := newSeedCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "contactseed",
		Short: "Load contacts from a JSON file and embed them",
		Long: `contactseed upserts the contacts in a JSON array file for one user,
then runs the embedding backfill so they are reachable by semantic search.

Records with an id replace the existing contact with that id.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&opts.userID, "user", "", "Owner of the seeded contacts (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON file holding an array of contacts (required)")
	cmd.Flags().BoolVar(&opts.embed, "embed", true, "Run the embedding backfill after loading")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed every contact of the user")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(ctx context.Context, out io.Writer, opts seedOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	records, err := readSeedFile(opts.file)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDatabaseDir(); err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	loaded, err := loadContacts(ctx, store, opts.userID, records)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Loaded %d contacts for %s into %s\n", loaded, opts.userID, cfg.Database.Path)

	if !opts.embed {
		return nil
	}

	emb, err := embedder.New(embedder.ConfigFrom(cfg.Embedding), log)
	if errors.Is(err, embedder.ErrNoProviderEnabled) {
		_, _ = fmt.Fprintln(out, "No embedding provider configured, skipping embeddings")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	gateway := embedder.NewGateway(emb, cfg.Embedding.Timeout, log)
	defer func() { _ = gateway.Close() }()

	idx := indexer.New(store, gateway, log)
	stats, err := idx.EmbedContacts(ctx, opts.userID, &indexer.Config{
		Workers:   cfg.Search.BackfillWorkers,
		BatchSize: cfg.Search.BackfillBatchSize,
		Force:     opts.force,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Embedded %d of %d contacts with %s/%s in %v\n",
		stats.ContactsEmbedded, stats.ContactsScanned, gateway.Provider(), gateway.Model(),
		stats.Duration.Round(time.Millisecond))
	if stats.ContactsFailed > 0 {
		log.Warn("some contacts were not embedded",
			zap.Int("failed", stats.ContactsFailed),
			zap.Error(stats.Err()),
		)
	}
	return nil
}

// readSeedFile decodes a JSON array of contacts
func readSeedFile(path string) ([]seedContact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var records []seedContact
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return records, nil
}

// loadContacts upserts records for userID in one transaction
func loadContacts(ctx context.Context, store storage.Storage, userID string, records []seedContact) (int, error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, r := range records {
		contact := &types.Contact{
			ID:        r.ID,
			UserID:    userID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Phone:     r.Phone,
			Company:   r.Company,
			Position:  r.Position,
			Location:  r.Location,
			Notes:     r.Notes,
			Tags:      r.Tags,
		}
		if embedder.ContactText(contact) == "" {
			return 0, fmt.Errorf("record %d: %w: no searchable fields", i, types.ErrValidation)
		}
		if err := tx.UpsertContact(ctx, contact); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(records), nil
}
