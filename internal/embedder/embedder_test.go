package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash("model-a", "hello world")
	h2 := ComputeHash("model-a", "hello world")
	h3 := ComputeHash("model-b", "hello world")
	h4 := ComputeHash("model-a", "hello world!")

	assert.Equal(t, h1, h2, "hash must be deterministic")
	assert.NotEqual(t, h1, h3, "model is part of the key")
	assert.NotEqual(t, h1, h4)
	assert.Len(t, h1, 64)
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "john"}))
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr error
	}{
		{"empty batch", BatchEmbeddingRequest{}, ErrInvalidInput},
		{"empty text", BatchEmbeddingRequest{Texts: []string{"a", ""}}, ErrInvalidInput},
		{"too large", BatchEmbeddingRequest{Texts: make([]string, MaxBatchSize+1)}, ErrBatchTooLarge},
		{"valid", BatchEmbeddingRequest{Texts: []string{"a", "b"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		_, ok := cache.Get("nonexistent")
		assert.False(t, ok)

		cache.Set("hash1", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "hash1"})
		got, ok := cache.Get("hash1")
		require.True(t, ok)
		assert.Equal(t, "hash1", got.Hash)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}})

		got, _ := cache.Get("h")
		got.Vector[0] = 99

		again, _ := cache.Get("h")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Set("hash2", &Embedding{Hash: "hash2"})
		cache.Set("hash3", &Embedding{Hash: "hash3"})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("hash1")
		assert.False(t, ok, "least recently used entry is evicted")
		_, ok = cache.Get("hash3")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					hash := ComputeHash("m", fmt.Sprintf("text-%d-%d", id, j))
					cache.Set(hash, &Embedding{Vector: []float32{float32(id), float32(j)}, Hash: hash})
					cache.Get(hash)
				}
			}(i)
		}
		wg.Wait()
		assert.Greater(t, cache.Size(), 0)
	})
}

func TestLocalProvider(t *testing.T) {
	provider := mustNewLocalProvider(t)
	ctx := context.Background()

	t.Run("deterministic unit vectors", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "John Doe, Acme"})
		require.NoError(t, err)
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "John Doe, Acme"})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)
		assert.Equal(t, ProviderLocal, a.Provider)
		assert.InDelta(t, 1.0, norm(a.Vector), 1e-5)
	})

	t.Run("shared vocabulary is closer", func(t *testing.T) {
		base, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "software engineer at acme in berlin"})
		near, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "senior software engineer berlin"})
		far, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "pastry chef, lyon"})

		assert.Greater(t, dot(base.Vector, near.Vector), dot(base.Vector, far.Vector))
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cctx, EmbeddingRequest{Text: "uncached text"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"one", "two"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.NotEqual(t, resp.Embeddings[0].Vector, resp.Embeddings[1].Vector)
	})

	assert.Equal(t, LocalDimension, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())
	assert.NoError(t, provider.Close())
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	return p
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
