package embedder

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/config"
)

// ProviderNone disables embeddings; semantic search then reports unavailable
const ProviderNone = "none"

// Config holds embedder configuration
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	CacheSize  int
}

// ConfigFrom maps the file configuration onto an embedder Config
func ConfigFrom(c config.EmbeddingConfig) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Dimensions: c.Dimensions,
		CacheSize:  c.CacheSize,
	}
}

// New creates an embedder with explicit configuration.
// Provider "none" returns ErrNoProviderEnabled.
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	pc := ProviderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Cache:      cache,
		Logger:     logger,
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderJina:
		p, err := NewJinaProvider(pc)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(pc)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderLocal, "":
		p, err := NewLocalProvider(cache)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderNone:
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
