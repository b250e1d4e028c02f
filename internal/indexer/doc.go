// Package indexer runs the embedding backfill for contacts.
//
// A backfill lists a user's contacts whose embedding is missing or older than
// the contact's last update, embeds them in batches through the embedding
// gateway and stores each batch's vectors in one transaction.
//
// # Basic Usage
//
//	idx := indexer.New(store, gateway, logger)
//
//	stats, err := idx.EmbedContacts(ctx, "user-1", &indexer.Config{
//	    Workers:   4,
//	    BatchSize: 50,
//	})
//
//	fmt.Printf("Embedded %d of %d contacts in %v\n",
//	    stats.ContactsEmbedded, stats.ContactsScanned, stats.Duration)
//
// # Batches
//
// Batches run concurrently, at most Config.Workers at a time. A batch that
// fails at the provider or in the store is counted in ContactsFailed and its
// error is kept in ErrorMessages; the other batches still complete. Failed
// contacts stay stale and are retried by the next run. Cancelling the context
// stops the run and returns the context error.
//
// Config.Force re-embeds every contact, for example after switching provider
// or model.
//
// # Concurrency
//
// Only one backfill runs per Indexer. A second call while one is in progress
// returns ErrBackfillInProgress rather than waiting.
package indexer
