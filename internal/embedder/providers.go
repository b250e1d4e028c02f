package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dshills/contactsearch/internal/metrics"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = string(openai.SmallEmbedding3)
	DefaultLocalModel  = "local-hash-v1"

	// Default endpoints
	DefaultJinaBaseURL = "https://api.jina.ai/v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// ProviderConfig holds the settings shared by remote providers
type ProviderConfig struct {
	APIKey     string
	BaseURL    string // Empty uses the provider default
	Model      string // Empty uses the provider default
	Dimensions int    // 0 uses the model's native size
	Cache      *Cache
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// OpenAIProvider implements Embedder against any OpenAI-compatible embeddings API.
// Jina is served by the same client with a different base URL.
type OpenAIProvider struct {
	client     *openai.Client
	provider   string
	model      string
	dimensions int
	requestDim int // Sent to the API only when configured
	cache      *Cache
	retry      RetryConfig
	logger     *zap.Logger
	httpClient *http.Client
}

// NewOpenAIProvider creates an embedder for the OpenAI API
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return newCompatibleProvider(ProviderOpenAI, cfg, OpenAIDimension)
}

// NewJinaProvider creates an embedder for the Jina AI API
func NewJinaProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultJinaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJinaBaseURL
	}
	return newCompatibleProvider(ProviderJina, cfg, JinaDimension)
}

func newCompatibleProvider(provider string, cfg ProviderConfig, nativeDim int) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key not set", ErrNoProviderEnabled, provider)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	clientCfg.HTTPClient = httpClient

	dim := cfg.Dimensions
	if dim <= 0 {
		dim = nativeDim
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retry := DefaultRetryConfig()
	retry.Retryable = isRetryable

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		provider:   provider,
		model:      cfg.Model,
		dimensions: dim,
		requestDim: cfg.Dimensions,
		cache:      cfg.Cache,
		retry:      retry,
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Use batch API for consistency
	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	// Serve what we can from cache and send only the misses
	embeddings := make([]*Embedding, len(req.Texts))
	missing := make([]int, 0, len(req.Texts))
	for i, text := range req.Texts {
		if o.cache != nil {
			if emb, ok := o.cache.Get(ComputeHash(model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := retryWithBackoff(ctx, o.retry, func() ([]*Embedding, error) {
			return o.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		if len(fetched) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(fetched))
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = ComputeHash(model, req.Texts[i])
			if o.cache != nil {
				o.cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   o.provider,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	if o.provider == ProviderOpenAI {
		req.EncodingFormat = openai.EmbeddingEncodingFormatFloat
	}
	if o.requestDim > 0 {
		req.Dimensions = o.requestDim
	}

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(o.provider, model, "api_error").Inc()
		o.logger.Warn("embedding request failed",
			zap.String("provider", o.provider),
			zap.String("model", model),
			zap.Int("texts", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(o.provider, model, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response")
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(o.provider, model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(o.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(o.provider, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	// Responses carry an index per input; order by it rather than trusting arrival order
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([]*Embedding, len(data))
	for i, d := range data {
		embeddings[i] = &Embedding{
			Vector:    d.Embedding,
			Dimension: len(d.Embedding),
			Provider:  o.provider,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimensions
}

func (o *OpenAIProvider) Provider() string {
	return o.provider
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// apiError carries the HTTP status of a failed provider call so retry can inspect it
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("embedding API error %d: %s", e.status, e.msg)
}

// parseAPIError extracts a readable error and the HTTP status from a client error
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return &apiError{status: reqErr.HTTPStatusCode, msg: detail}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apiError{status: apiErr.HTTPStatusCode, msg: apiErr.Message}
	}

	return fmt.Errorf("embedding request failed: %w", err)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// isRetryable reports whether a failed call is worth repeating.
// Client errors other than rate limiting will fail the same way again.
func isRetryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}

// LocalProvider produces deterministic hash-based embeddings without any
// network call. Shared words and character trigrams land in shared buckets,
// so texts with overlapping vocabulary have positive cosine similarity.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// Weights for vector generation
const (
	localTokenWeight = 0.7
	localNgramWeight = 0.3
	localNgramSize   = 3
)

var localTokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    NormalizeVector(l.generateVector(req.Text)),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

// generateVector adds weighted buckets for every token and character trigram
func (l *LocalProvider) generateVector(text string) []float32 {
	vector := make([]float32, l.dimension)
	lower := strings.ToLower(text)

	for _, token := range localTokenRegex.FindAllString(lower, -1) {
		vector[hashToIndex(token, l.dimension)] += localTokenWeight
	}

	var compact strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			compact.WriteRune(r)
		}
	}
	runes := []rune(compact.String())
	for i := 0; i+localNgramSize <= len(runes); i++ {
		vector[hashToIndex(string(runes[i:i+localNgramSize]), l.dimension)] += localNgramWeight
	}

	return vector
}

// hashToIndex maps a string onto a bucket in [0, dim)
func hashToIndex(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
