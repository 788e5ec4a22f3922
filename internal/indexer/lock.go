package indexer

import "sync/atomic"

// IndexLock is a non-blocking try-lock guarding index rebuilds. A rebuild
// that finds the lock held is rejected instead of queued, so at most one
// build runs while queries continue on the published index.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the caller that acquired it may release it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether a build is currently in progress
func (l *IndexLock) Held() bool {
	return l.held.Load()
}
