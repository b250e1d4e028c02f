// Package storage provides SQLite-based persistence for contacts, their
// embeddings and per-user search history.
//
// The storage layer manages:
//   - Contacts, owned by exactly one user and soft deleted
//   - Contact embeddings, one vector per contact, replaced wholesale
//   - Search history, capped to the most recent entries per user
//   - The contacts_fts full-text index
//
// # Database Schema
//
// Tables:
//   - contacts: contact rows; seq is the integer key behind the FTS index
//   - contacts_fts: FTS5 external-content index (porter unicode61)
//   - contact_embeddings: little-endian float32 vectors
//   - search_history: append-only query log
//   - schema_version: applied migration versions (semver)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("contacts.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertContact(ctx, &types.Contact{
//	    UserID:    "user-1",
//	    FirstName: "John",
//	    LastName:  "Doe",
//	})
//
// Every read path is scoped by user and excludes soft-deleted contacts.
//
// # Full-Text Search
//
// Queries are sanitized and turned into a MATCH expression of quoted prefix
// phrases, restricted to the columns of the selected fields:
//
//	{first_name last_name} : ("john"* AND "doe"*)
//
// Scores are -bm25(), so higher is better.
//
// SearchFuzzy scores contacts in Go with trigram similarity combined with
// per-word edit similarity; a contact qualifies above FuzzyThreshold.
//
// # Vector Operations
//
//	results, err := db.SearchVector(ctx, "user-1", queryVector, storage.VectorSearchOptions{
//	    Threshold: 0.7,
//	    Limit:     10,
//	})
//
// Similarity is 1 - distance/2 where distance is cosine distance in [0, 2].
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, e := range embeddings {
//	    if err := tx.UpsertEmbedding(ctx, e); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Registers sqlite-vec so vec_distance_cosine runs in SQL
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Cosine distance computed in Go
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
