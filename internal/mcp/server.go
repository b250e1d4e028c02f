package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/embedder"
	"github.com/dshills/contactsearch/internal/indexer"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/searcher"
	"github.com/dshills/contactsearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "contactsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	gateway  *embedder.Gateway
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	backfill indexer.Config
	logger   *zap.Logger
}

// NewServer opens the store and embedding provider described by cfg and
// registers the contact search tools
func NewServer(cfg config.Config, log *zap.Logger) (*Server, error) {
	log = logger.OrNop(log)

	if err := cfg.EnsureDatabaseDir(); err != nil {
		return nil, err
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Create embedder, shared by the searcher and the backfill so they use one cache
	emb, err := embedder.New(embedder.ConfigFrom(cfg.Embedding), log)
	switch {
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		log.Warn("no embedding provider configured, semantic and hybrid search disabled")
		emb = nil
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	gateway := embedder.NewGateway(emb, cfg.Embedding.Timeout, log)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:  store,
		gateway:  gateway,
		indexer:  indexer.New(store, gateway, log.Named("indexer")),
		searcher: searcher.New(store, gateway, searcher.OptionsFrom(cfg.Search), log.Named("searcher")),
		backfill: indexer.Config{
			Workers:   cfg.Search.BackfillWorkers,
			BatchSize: cfg.Search.BackfillBatchSize,
		},
		logger: log,
	}

	s.registerTools()

	log.Info("mcp server initialized",
		zap.String("database", cfg.Database.Path),
		zap.String("embedding_provider", gateway.Provider()),
		zap.String("embedding_model", gateway.Model()),
	)
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is done or
// stdin is closed. Every tool call context carries the server logger.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return logger.ContextWithLogger(ctx, s.logger)
	})
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close drains pending history writes and releases the provider and store
func (s *Server) Close() error {
	return errors.Join(
		s.searcher.Close(),
		s.gateway.Close(),
		s.storage.Close(),
	)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchContactsTool(), s.handleSearchContacts)
	s.mcp.AddTool(findSimilarContactsTool(), s.handleFindSimilarContacts)
	s.mcp.AddTool(listRecentQueriesTool(), s.handleListRecentQueries)
	s.mcp.AddTool(deleteQueryTool(), s.handleDeleteQuery)
	s.mcp.AddTool(clearQueriesTool(), s.handleClearQueries)
	s.mcp.AddTool(embedContactsTool(), s.handleEmbedContacts)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
