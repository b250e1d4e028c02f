package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load
const (
	EnvConfigPath        = "CONTACTSEARCH_CONFIG"
	EnvEnvironment       = "CONTACTSEARCH_ENV"
	EnvDatabasePath      = "CONTACTSEARCH_DB_PATH"
	EnvEmbeddingProvider = "CONTACTSEARCH_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
)

// Config holds the contactsearch configuration.
type Config struct {
	Env       string          `yaml:"env"` // local, dev, prod (default: prod)
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // openai, jina, local, none
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// SearchConfig holds search defaults and limits.
type SearchConfig struct {
	DefaultLimit        int           `yaml:"default_limit"`
	MaxLimit            int           `yaml:"max_limit"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	SemanticWeight      float64       `yaml:"semantic_weight"`
	HistoryCap          int           `yaml:"history_cap"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	HistoryTimeout      time.Duration `yaml:"history_timeout"`
	SnippetContext      int           `yaml:"snippet_context"`
	PositionalFusion    bool          `yaml:"positional_fusion"` // Fuse on rank position instead of boosted lexical score
	BackfillWorkers     int           `yaml:"backfill_workers"`
	BackfillBatchSize   int           `yaml:"backfill_batch_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// MetricsConfig holds the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from path, or from $CONTACTSEARCH_CONFIG when path
// is empty. With neither set, defaults plus environment overrides are used.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnv fills fields the file left empty from the environment.
func (c *Config) applyEnv() {
	if c.Env == "" {
		c.Env = os.Getenv(EnvEnvironment)
	}
	if v := os.Getenv(EnvDatabasePath); v != "" && c.Database.Path == "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" && c.Embedding.Provider == "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if c.Embedding.Provider == "" {
		// Auto-detect based on available API keys
		switch {
		case os.Getenv(EnvOpenAIAPIKey) != "":
			c.Embedding.Provider = "openai"
		case os.Getenv(EnvJinaAPIKey) != "":
			c.Embedding.Provider = "jina"
		}
	}
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
		case "jina":
			c.Embedding.APIKey = os.Getenv(EnvJinaAPIKey)
		}
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "prod"
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath()
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 5 * time.Second
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 10000
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.SimilarityThreshold == 0 {
		c.Search.SimilarityThreshold = 0.7
	}
	if c.Search.SemanticWeight == 0 {
		c.Search.SemanticWeight = 0.5
	}
	if c.Search.HistoryCap <= 0 {
		c.Search.HistoryCap = 50
	}
	if c.Search.RequestTimeout <= 0 {
		c.Search.RequestTimeout = 2 * time.Second
	}
	if c.Search.HistoryTimeout <= 0 {
		c.Search.HistoryTimeout = time.Second
	}
	if c.Search.SnippetContext <= 0 {
		c.Search.SnippetContext = 50
	}
	if c.Search.BackfillWorkers <= 0 {
		c.Search.BackfillWorkers = 4
	}
	if c.Search.BackfillBatchSize <= 0 {
		c.Search.BackfillBatchSize = 50
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("env must be one of local, dev, prod, got %q", c.Env)
	}
	switch c.Embedding.Provider {
	case "openai", "jina", "local", "none":
	default:
		return fmt.Errorf("embedding.provider must be one of openai, jina, local, none, got %q", c.Embedding.Provider)
	}
	if (c.Embedding.Provider == "openai" || c.Embedding.Provider == "jina") && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Search.MaxLimit > 100 {
		return fmt.Errorf("search.max_limit must be at most 100, got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be between 0 and 1, got %g", c.Search.SimilarityThreshold)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %g", c.Search.SemanticWeight)
	}
	return nil
}

// defaultDatabasePath returns ~/.contactsearch/contacts.db, or a relative
// path when the home directory is unknown.
func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "contacts.db"
	}
	return filepath.Join(home, ".contactsearch", "contacts.db")
}

// EnsureDatabaseDir creates the parent directory of the database file.
func (c *Config) EnsureDatabaseDir() error {
	if c.Database.Path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
