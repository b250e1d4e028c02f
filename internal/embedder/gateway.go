package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/contactsearch/pkg/types"
)

// DefaultGatewayTimeout bounds a single embedding call
const DefaultGatewayTimeout = 5 * time.Second

// Gateway is the single entry point from search code to the embedding
// provider. It applies its own timeout, never retries, and reports every
// provider failure as types.ErrEmbeddingUnavailable.
type Gateway struct {
	embedder Embedder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGateway wraps e. A nil embedder yields a gateway that reports unavailable.
func NewGateway(e Embedder, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{embedder: e, timeout: timeout, logger: logger}
}

// IsAvailable reports whether a provider is configured
func (g *Gateway) IsAvailable() bool {
	return g != nil && g.embedder != nil
}

// Provider returns the provider name, or "" when unavailable
func (g *Gateway) Provider() string {
	if !g.IsAvailable() {
		return ""
	}
	return g.embedder.Provider()
}

// Model returns the model name, or "" when unavailable
func (g *Gateway) Model() string {
	if !g.IsAvailable() {
		return ""
	}
	return g.embedder.Model()
}

// Dimension returns the vector size, or 0 when unavailable
func (g *Gateway) Dimension() int {
	if !g.IsAvailable() {
		return 0
	}
	return g.embedder.Dimension()
}

// GenerateEmbedding turns text into a vector
func (g *Gateway) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, ErrEmptyText)
	}
	if !g.IsAvailable() {
		return nil, types.ErrEmbeddingUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	emb, err := g.embedder.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		g.logger.Warn("embedding generation failed",
			zap.String("provider", g.embedder.Provider()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
	}
	if len(emb.Vector) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", types.ErrEmbeddingUnavailable)
	}
	return emb.Vector, nil
}

// EmbedContact produces the vector for a contact's searchable text
func (g *Gateway) EmbedContact(ctx context.Context, contact *types.Contact) ([]float32, error) {
	if contact == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingContact)
	}
	text := ContactText(contact)
	if text == "" {
		return nil, fmt.Errorf("%w: contact %s has no text to embed", types.ErrValidation, contact.ID)
	}
	return g.GenerateEmbedding(ctx, text)
}

// EmbedContacts embeds several contacts in one provider batch call.
// Vectors are returned in input order.
func (g *Gateway) EmbedContacts(ctx context.Context, contacts []*types.Contact) ([][]float32, error) {
	if len(contacts) == 0 {
		return [][]float32{}, nil
	}
	if !g.IsAvailable() {
		return nil, types.ErrEmbeddingUnavailable
	}

	texts := make([]string, len(contacts))
	for i, c := range contacts {
		texts[i] = ContactText(c)
		if texts[i] == "" {
			return nil, fmt.Errorf("%w: contact %s has no text to embed", types.ErrValidation, c.ID)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		g.logger.Warn("batch embedding failed",
			zap.String("provider", g.embedder.Provider()),
			zap.Int("contacts", len(contacts)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(contacts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d",
			types.ErrEmbeddingUnavailable, len(contacts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Vector
	}
	return vectors, nil
}

// Close releases the underlying provider
func (g *Gateway) Close() error {
	if !g.IsAvailable() {
		return nil
	}
	return g.embedder.Close()
}

// ContactText composes the text embedded for a contact: the non-empty
// display fields, tags and notes, in a fixed order.
func ContactText(c *types.Contact) string {
	parts := make([]string, 0, 8)
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(c.FullName())
	add(c.Email)
	add(c.Company)
	add(c.Position)
	add(c.Location)
	add(strings.Join(c.Tags, ", "))
	add(c.Notes)

	return strings.Join(parts, ". ")
}
