package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

func TestApplyMigrations_FreshDatabase(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version)

	require.NoError(t, ApplyMigrations(ctx, db))

	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"contacts", "contacts_fts", "contact_embeddings", "search_history"} {
		assert.True(t, tableExists(t, db, table), table)
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)
	assert.False(t, tableExists(t, db, "search_history"))
	assert.True(t, tableExists(t, db, "contacts"))

	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "contacts"))
	assert.False(t, tableExists(t, db, "schema_version"))

	assert.Error(t, RollbackMigration(ctx, db))

	// Re-applying after a full rollback restores the schema
	require.NoError(t, ApplyMigrations(ctx, db))
	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
