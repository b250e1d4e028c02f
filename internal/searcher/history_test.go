package searcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/pkg/types"
)

func queries(entries []*types.SearchHistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Query
	}
	return out
}

func TestSearch_RecordsHistory(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	seedScenario(t, store)
	ctx := context.Background()

	resp, err := s.SearchLexical(ctx, testUser, "  john  ", nil, false, 10)
	require.NoError(t, err)
	s.Flush()

	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "john", entries[0].Query)
	assert.Equal(t, resp.Total, entries[0].ResultCount)
	assert.NotEmpty(t, entries[0].ID)

	// Rejected queries are not recorded
	_, err = s.SearchLexical(ctx, testUser, "j", nil, false, 10)
	require.Error(t, err)
	s.Flush()

	entries, err = s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSearch_HistoryFailureIsSwallowed(t *testing.T) {
	store := &spyStore{Storage: setupStore(t), historyError: errors.New("disk full")}
	s := setupSearcher(t, store, nil)
	seedScenario(t, store)

	resp, err := s.SearchLexical(context.Background(), testUser, "john", nil, false, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
	s.Flush()
}

func TestRecordQuery_Cap(t *testing.T) {
	store := setupStore(t)
	opts := DefaultOptions()
	opts.HistoryCap = 3
	s := New(store, nil, opts, nil)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.RecordQuery(ctx, testUser, fmt.Sprintf("query %d", i), i))
	}

	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"query 3", "query 2", "query 1"}, queries(entries))
}

func TestRecordQuery_Validation(t *testing.T) {
	s := setupSearcher(t, setupStore(t), nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.RecordQuery(ctx, "", "john", 1), types.ErrValidation)
	assert.ErrorIs(t, s.RecordQuery(ctx, testUser, "   ", 1), types.ErrValidation)
}

func TestListRecentQueries_Dedup(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	for i, q := range []string{"alice", "bob", "alice", "carol", "bob"} {
		require.NoError(t, s.RecordQuery(ctx, testUser, q, i))
	}
	require.NoError(t, s.RecordQuery(ctx, "user-2", "dave", 0))

	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol", "alice"}, queries(entries))
	assert.Equal(t, 4, entries[0].ResultCount, "most recent occurrence wins")
	assert.Equal(t, 2, entries[2].ResultCount)

	entries, err = s.ListRecentQueries(ctx, testUser, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, queries(entries))

	_, err = s.ListRecentQueries(ctx, testUser, -1)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDeleteQuery(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	require.NoError(t, s.RecordQuery(ctx, testUser, "alice", 1))
	require.NoError(t, s.RecordQuery(ctx, testUser, "bob", 1))
	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.ErrorIs(t, s.DeleteQuery(ctx, "user-2", entries[0].ID), types.ErrNotFound, "other users cannot delete")
	require.NoError(t, s.DeleteQuery(ctx, testUser, entries[0].ID))
	assert.ErrorIs(t, s.DeleteQuery(ctx, testUser, entries[0].ID), types.ErrNotFound)
	assert.ErrorIs(t, s.DeleteQuery(ctx, testUser, ""), types.ErrValidation)

	entries, err = s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, queries(entries))
}

func TestClearQueries(t *testing.T) {
	store := setupStore(t)
	s := setupSearcher(t, store, nil)
	ctx := context.Background()

	for _, q := range []string{"alice", "bob", "alice"} {
		require.NoError(t, s.RecordQuery(ctx, testUser, q, 1))
	}
	require.NoError(t, s.RecordQuery(ctx, "user-2", "dave", 1))

	n, err := s.ClearQueries(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := s.ListRecentQueries(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = s.ListRecentQueries(ctx, "user-2", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
