package indexer

import "sync/atomic"

// IndexLock lets one embedding backfill run at a time. A second caller fails
// fast instead of queueing behind the first.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = backfill running
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}
