// Package embedder generates vector embeddings for contacts and search queries.
//
// Three providers are supported. OpenAI and Jina AI share one client built on
// the OpenAI-compatible embeddings API; the local provider hashes tokens and
// character trigrams into a fixed-size vector and needs no network.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.ConfigFrom(cfg.Embedding), logger)
//	if err != nil {
//	    return err
//	}
//	gw := embedder.NewGateway(emb, cfg.Embedding.Timeout, logger)
//	defer gw.Close()
//
//	vec, err := gw.GenerateEmbedding(ctx, "product designers in lisbon")
//
// # Gateway
//
// Search code talks to providers only through Gateway. It trims and validates
// the text, applies a per-call timeout and never retries. Any provider failure
// is returned wrapped in types.ErrEmbeddingUnavailable, so callers can test
// with errors.Is and fall back or report the dependency failure.
//
// # Provider Selection
//
// The provider comes from configuration ("openai", "jina", "local" or "none").
// When the configuration leaves it empty, the config package picks one from
// the environment: JINA_API_KEY, then OPENAI_API_KEY, then local.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by a SHA-256 of model and text.
// Batch calls send only the cache misses to the provider.
//
//	cache := embedder.NewCache(10000)
//	hash := embedder.ComputeHash(model, text)
//
// # Error Handling
//
// Remote calls retry with exponential backoff on network errors, HTTP 429 and
// 5xx responses. Other client errors fail on the first attempt.
//
//	_, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // all attempts exhausted
//	}
package embedder
