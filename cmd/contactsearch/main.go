package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/mcp"
	"github.com/dshills/contactsearch/internal/metrics"
	"github.com/dshills/contactsearch/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "contactsearch",
		Short: "Hybrid contact search MCP server",
		Long: `contactsearch serves lexical, semantic and hybrid search over
per-user contacts to MCP clients on stdio.

Configuration is read from --config, or from $CONTACTSEARCH_CONFIG, falling
back to defaults and environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.SetVersionTemplate(fmt.Sprintf(
		"contactsearch version {{.Version}}\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
		buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable,
	))
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	// Logs go to stderr; stdout is reserved for the MCP protocol
	log, err := logger.NewLogger(cfg.Env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("contactsearch starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable),
	)

	metrics.Register()
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metrics.Serve(srv); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	server, err := mcp.NewServer(cfg, log)
	if err != nil {
		log.Error("failed to create MCP server", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, stopping")
		_ = server.Close()
	case err := <-errChan:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	}

	log.Info("server stopped")
	return nil
}
