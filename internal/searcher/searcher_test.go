package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/internal/embedder"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

const testUser = "user-1"

// mockEmbedder implements the Embedder interface for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	vector := []float32{1, 0, 0}
	if m.generateFunc != nil {
		var err error
		if vector, err = m.generateFunc(ctx, req.Text); err != nil {
			return nil, err
		}
	}
	return &embedder.Embedding{Vector: vector, Dimension: len(vector), Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// spyStore counts engine calls and can fail history writes
type spyStore struct {
	storage.Storage
	engineCalls  atomic.Int32
	historyError error
}

func (s *spyStore) SearchText(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]storage.TextResult, error) {
	s.engineCalls.Add(1)
	return s.Storage.SearchText(ctx, userID, query, fields, limit)
}

func (s *spyStore) SearchFuzzy(ctx context.Context, userID, query string, fields []types.Field, limit int) ([]storage.TextResult, error) {
	s.engineCalls.Add(1)
	return s.Storage.SearchFuzzy(ctx, userID, query, fields, limit)
}

func (s *spyStore) SearchVector(ctx context.Context, userID string, vector []float32, opts storage.VectorSearchOptions) ([]storage.VectorResult, error) {
	s.engineCalls.Add(1)
	return s.Storage.SearchVector(ctx, userID, vector, opts)
}

func (s *spyStore) InsertHistory(ctx context.Context, entry *types.SearchHistoryEntry, maxEntries int) error {
	if s.historyError != nil {
		return s.historyError
	}
	return s.Storage.InsertHistory(ctx, entry, maxEntries)
}

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupSearcher(t *testing.T, store storage.Storage, emb embedder.Embedder) *Searcher {
	t.Helper()
	var gw *embedder.Gateway
	if emb != nil {
		gw = embedder.NewGateway(emb, time.Second, nil)
	}
	s := New(store, gw, DefaultOptions(), nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addContact(t *testing.T, store storage.Storage, c *types.Contact, vector []float32) *types.Contact {
	t.Helper()
	ctx := context.Background()
	if c.UserID == "" {
		c.UserID = testUser
	}
	require.NoError(t, store.UpsertContact(ctx, c))
	if vector != nil {
		require.NoError(t, store.UpsertEmbedding(ctx, &storage.Embedding{
			ContactID: c.ID,
			Vector:    vector,
			Provider:  "mock",
			Model:     "mock-model",
		}))
	}
	return c
}

// seedScenario stores John Doe, Jane Smith and Bob Johnson. The mock query
// vector [1,0,0] is closest to Jane, then Bob; John falls below 0.7.
func seedScenario(t *testing.T, store storage.Storage) (john, jane, bob *types.Contact) {
	john = addContact(t, store, &types.Contact{FirstName: "John", LastName: "Doe", Email: "john.doe@x.com"}, []float32{0, 1, 0})
	jane = addContact(t, store, &types.Contact{FirstName: "Jane", LastName: "Smith"}, []float32{1, 0, 0})
	bob = addContact(t, store, &types.Contact{FirstName: "Bob", LastName: "Johnson"}, []float32{0.8, 0.6, 0})
	return john, jane, bob
}

func TestSearchLexical_Scenario(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	john, _, _ := seedScenario(t, store)
	ctx := context.Background()

	resp, err := s.SearchLexical(ctx, testUser, "john", nil, false, 10)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, john.ID, resp.Results[0].Contact.ID)
	assert.Equal(t, ModeLexical, resp.Mode)
	assert.Equal(t, "john", resp.Query)
	for _, r := range resp.Results[1:] {
		assert.Less(t, r.RelevanceScore, resp.Results[0].RelevanceScore)
	}
	for _, r := range resp.Results {
		assert.NoError(t, r.Validate())
	}

	resp, err = s.SearchLexical(ctx, testUser, "jhon", nil, true, 10)
	require.NoError(t, err)
	assert.Contains(t, ids(resp.Results), john.ID)
}

func TestSearchLexical_ExactBeatsPrefix(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	johnny := addContact(t, store, &types.Contact{FirstName: "Johnny"}, nil)
	john := addContact(t, store, &types.Contact{FirstName: "John"}, nil)

	resp, err := s.SearchLexical(context.Background(), testUser, "John", []string{"name"}, false, 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, john.ID, resp.Results[0].Contact.ID)
	assert.Equal(t, johnny.ID, resp.Results[1].Contact.ID)
	assert.Greater(t, resp.Results[0].RelevanceScore, resp.Results[1].RelevanceScore)
}

func TestSearchLexical_Scoping(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	mine := addContact(t, store, &types.Contact{FirstName: "John", LastName: "Mine"}, nil)
	addContact(t, store, &types.Contact{UserID: "user-2", FirstName: "John", LastName: "Theirs"}, nil)
	deleted := addContact(t, store, &types.Contact{FirstName: "John", LastName: "Gone"}, nil)
	require.NoError(t, store.SoftDeleteContact(ctx, testUser, deleted.ID))

	for _, fuzzy := range []bool{false, true} {
		t.Run(fmt.Sprintf("fuzzy=%v", fuzzy), func(t *testing.T) {
			resp, err := s.SearchLexical(ctx, testUser, "john", nil, fuzzy, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{mine.ID}, ids(resp.Results))
			for _, r := range resp.Results {
				assert.Equal(t, testUser, r.Contact.UserID)
				assert.False(t, r.Contact.IsDeleted())
			}
		})
	}
}

func TestSearchLexical_FieldRestriction(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	byName := addContact(t, store, &types.Contact{FirstName: "Acme"}, nil)
	byCompany := addContact(t, store, &types.Contact{FirstName: "Zed", Company: "Acme"}, nil)

	resp, err := s.SearchLexical(ctx, testUser, "acme", []string{"company"}, false, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{byCompany.ID}, ids(resp.Results))

	resp, err = s.SearchLexical(ctx, testUser, "acme", nil, false, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{byName.ID, byCompany.ID}, ids(resp.Results))

	_, err = s.SearchLexical(ctx, testUser, "acme", []string{"phone"}, false, 10)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSearch_LimitAndTotal(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	for i := 0; i < 5; i++ {
		addContact(t, store, &types.Contact{FirstName: "Sam", LastName: fmt.Sprintf("Tester%d", i)}, nil)
	}

	resp, err := s.SearchLexical(context.Background(), testUser, "sam", nil, false, 2)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
}

func TestSearch_TotalBeyondCandidatePool(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, &mockEmbedder{})
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		addContact(t, store, &types.Contact{FirstName: "John", LastName: fmt.Sprintf("Walker%02d", i)}, []float32{1, 0, 0})
	}

	lexical, err := s.SearchLexical(ctx, testUser, "john", nil, false, 5)
	require.NoError(t, err)
	assert.Len(t, lexical.Results, 5)
	assert.Equal(t, 30, lexical.Total)

	semantic, err := s.SearchSemantic(ctx, testUser, "john", 5, nil)
	require.NoError(t, err)
	assert.Len(t, semantic.Results, 5)
	assert.Equal(t, 30, semantic.Total)

	hybrid, err := s.SearchHybrid(ctx, testUser, "john", 5, nil)
	require.NoError(t, err)
	assert.Len(t, hybrid.Results, 5)
	assert.Equal(t, 30, hybrid.Total)

	similar, err := s.FindSimilar(ctx, lexical.Results[0].Contact.ID, testUser, 5)
	require.NoError(t, err)
	assert.Len(t, similar.Results, 5)
	assert.Equal(t, 29, similar.Total)

	s.Flush()
	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, 30, entries[0].ResultCount)
}

func TestSearch_QueryLengthBoundary(t *testing.T) {
	store := &spyStore{Storage: setupStore(t)}
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	_, err := s.SearchLexical(ctx, testUser, "j", nil, false, 10)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Zero(t, store.engineCalls.Load(), "no engine runs for an invalid query")

	_, err = s.SearchLexical(ctx, testUser, "jo", nil, false, 10)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), store.engineCalls.Load())
}

func TestSearch_Idempotent(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, &mockEmbedder{})
	seedScenario(t, store)
	ctx := context.Background()

	for _, mode := range []SearchMode{ModeLexical, ModeSemantic, ModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			req := SearchRequest{UserID: testUser, Query: "john", Mode: mode, Threshold: ptr(0)}
			first, err := s.Search(ctx, req)
			require.NoError(t, err)
			second, err := s.Search(ctx, req)
			require.NoError(t, err)

			require.Equal(t, ids(first.Results), ids(second.Results))
			for i := range first.Results {
				assert.Equal(t, first.Results[i].RelevanceScore, second.Results[i].RelevanceScore)
				assert.Equal(t, first.Results[i].SimilarityScore, second.Results[i].SimilarityScore)
				assert.Equal(t, first.Results[i].CombinedScore, second.Results[i].CombinedScore)
			}
		})
	}
}

func TestSearchSemantic(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, &mockEmbedder{})
	_, jane, bob := seedScenario(t, store)
	addContact(t, store, &types.Contact{FirstName: "No", LastName: "Vector"}, nil)
	ctx := context.Background()

	resp, err := s.SearchSemantic(ctx, testUser, "people like jane", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{jane.ID, bob.ID}, ids(resp.Results), "default threshold 0.7 drops John")
	assert.InDelta(t, 1.0, resp.Results[0].SimilarityScore, 1e-6)
	assert.InDelta(t, 0.9, resp.Results[1].SimilarityScore, 1e-6)

	resp, err = s.SearchSemantic(ctx, testUser, "people like jane", 10, ptr(0.95))
	require.NoError(t, err)
	assert.Equal(t, []string{jane.ID}, ids(resp.Results))

	resp, err = s.SearchSemantic(ctx, testUser, "people like jane", 10, ptr(0))
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3, "contacts without an embedding never match")
}

func TestSearchSemantic_Unavailable(t *testing.T) {
	store := &spyStore{Storage: setupStore(t)}
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	_, err := s.SearchSemantic(ctx, testUser, "john", 10, nil)
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = s.SearchHybrid(ctx, testUser, "john", 10, nil)
	assert.ErrorIs(t, err, types.ErrPrecondition)
	assert.Zero(t, store.engineCalls.Load(), "no silent fallback to lexical")
}

func TestSearchSemantic_ProviderFailure(t *testing.T) {
	store := setupStore(t)
	cause := errors.New("provider down")
	s := setupSearcher(t, store, &mockEmbedder{
		generateFunc: func(ctx context.Context, text string) ([]float32, error) { return nil, cause },
	})
	seedScenario(t, store)
	ctx := context.Background()

	_, err := s.SearchSemantic(ctx, testUser, "john", 10, nil)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, types.ErrDependency)

	_, err = s.SearchHybrid(ctx, testUser, "john", 10, nil)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable, "hybrid never returns partial results")
}

func TestSearchHybrid(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, &mockEmbedder{})
	john, jane, bob := seedScenario(t, store)
	ctx := context.Background()

	resp, err := s.SearchHybrid(ctx, testUser, "john", 10, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{john.ID, jane.ID, bob.ID}, ids(resp.Results))
	assert.Equal(t, ModeHybrid, resp.Mode)

	byID := map[string]types.RankedResult{}
	for _, r := range resp.Results {
		byID[r.Contact.ID] = r
		assert.InDelta(t, r.SimilarityScore*0.5+r.RelevanceScore*0.5, r.CombinedScore, 1e-9)
	}
	assert.Zero(t, byID[jane.ID].RelevanceScore, "semantic-only hit")
	assert.Zero(t, byID[john.ID].SimilarityScore, "lexical-only hit")
	assert.Positive(t, byID[bob.ID].RelevanceScore)
	assert.Positive(t, byID[bob.ID].SimilarityScore)
}

func TestSearchHybrid_WeightExtremes(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, &mockEmbedder{})
	seedScenario(t, store)
	ctx := context.Background()

	lexical, err := s.SearchLexical(ctx, testUser, "john", nil, false, 10)
	require.NoError(t, err)
	semantic, err := s.SearchSemantic(ctx, testUser, "john", 10, nil)
	require.NoError(t, err)

	hybrid, err := s.SearchHybrid(ctx, testUser, "john", 10, ptr(0))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(hybrid.Results), len(lexical.Results))
	assert.Equal(t, ids(lexical.Results), ids(hybrid.Results)[:len(lexical.Results)])

	hybrid, err = s.SearchHybrid(ctx, testUser, "john", 10, ptr(1))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(hybrid.Results), len(semantic.Results))
	assert.Equal(t, ids(semantic.Results), ids(hybrid.Results)[:len(semantic.Results)])
}

func TestSearchHybrid_PositionalFusion(t *testing.T) {
	store := setupStore(t)
	opts := DefaultOptions()
	opts.PositionalFusion = true
	s := New(store, embedder.NewGateway(&mockEmbedder{}, time.Second, nil), opts, nil)
	defer s.Close()
	john, _, bob := seedScenario(t, store)

	resp, err := s.SearchHybrid(context.Background(), testUser, "john", 10, ptr(0))
	require.NoError(t, err)

	byID := map[string]types.RankedResult{}
	for _, r := range resp.Results {
		byID[r.Contact.ID] = r
	}
	assert.Equal(t, 1.0, byID[john.ID].RelevanceScore)
	assert.Equal(t, 0.5, byID[bob.ID].RelevanceScore)
}

func TestSearch_Timeout(t *testing.T) {
	store := setupStore(t)
	seedScenario(t, store)

	opts := DefaultOptions()
	opts.RequestTimeout = 20 * time.Millisecond
	blocking := &mockEmbedder{
		generateFunc: func(ctx context.Context, text string) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := New(store, embedder.NewGateway(blocking, 5*time.Second, nil), opts, nil)
	defer s.Close()

	start := time.Now()
	_, err := s.SearchHybrid(context.Background(), testUser, "john", 10, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearch_StoreFailure(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	s := setupSearcher(t, store, nil)
	_, err = s.SearchLexical(context.Background(), testUser, "john", nil, false, 10)
	assert.ErrorIs(t, err, types.ErrDependency)
}

func TestSearch_Highlight(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	seedScenario(t, store)

	resp, err := s.Search(context.Background(), SearchRequest{UserID: testUser, Query: "john", Highlight: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "<mark>John</mark>", resp.Results[0].Highlights[HighlightFirstName])

	resp, err = s.Search(context.Background(), SearchRequest{UserID: testUser, Query: "john"})
	require.NoError(t, err)
	assert.Nil(t, resp.Results[0].Highlights)
}

func TestFindSimilar(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	seed := addContact(t, store, &types.Contact{FirstName: "Seed"}, []float32{1, 0, 0})
	twin := addContact(t, store, &types.Contact{FirstName: "Twin"}, []float32{1, 0, 0})
	near := addContact(t, store, &types.Contact{FirstName: "Near"}, []float32{0.8, 0.6, 0})
	addContact(t, store, &types.Contact{FirstName: "Far"}, []float32{-1, 0, 0})
	addContact(t, store, &types.Contact{UserID: "user-2", FirstName: "Other"}, []float32{1, 0, 0})
	bare := addContact(t, store, &types.Contact{FirstName: "Bare"}, nil)

	t.Run("excludes seed and orders by similarity", func(t *testing.T) {
		resp, err := s.FindSimilar(ctx, seed.ID, testUser, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{twin.ID, near.ID}, ids(resp.Results))
		assert.Equal(t, ModeSimilar, resp.Mode)
	})

	t.Run("limit", func(t *testing.T) {
		resp, err := s.FindSimilar(ctx, seed.ID, testUser, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{twin.ID}, ids(resp.Results))
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.FindSimilar(ctx, "missing", testUser, 10)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("other owner", func(t *testing.T) {
		_, err := s.FindSimilar(ctx, seed.ID, "user-2", 10)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("no embedding", func(t *testing.T) {
		resp, err := s.FindSimilar(ctx, bare.ID, testUser, 10)
		assert.ErrorIs(t, err, types.ErrPrecondition)
		assert.Nil(t, resp)
	})

	t.Run("deleted seed", func(t *testing.T) {
		require.NoError(t, store.SoftDeleteContact(ctx, testUser, near.ID))
		_, err := s.FindSimilar(ctx, near.ID, testUser, 10)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := s.FindSimilar(ctx, "", testUser, 10)
		assert.ErrorIs(t, err, types.ErrValidation)
		_, err = s.FindSimilar(ctx, seed.ID, testUser, -1)
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}
