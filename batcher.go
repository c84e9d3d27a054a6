package sellergo

import (
	"context"
	"sync"
	"time"
)

// DefaultBatchMaxAge bounds how long a batch entry keeps absorbing callers.
const DefaultBatchMaxAge = 50 * time.Millisecond

// batchSweepThreshold triggers removal of aged-out entries once the batch
// map grows past this many keys.
const batchSweepThreshold = 100

// RequestBatcher coalesces near-simultaneous identical logical calls into a
// single upstream call. Callers arriving within maxAge of an entry's creation
// share its result, whether the owning call is still in flight or already
// completed.
type RequestBatcher struct {
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*batchEntry
}

type batchEntry struct {
	done      chan struct{}
	resp      *Response
	err       error
	createdAt time.Time
}

// NewRequestBatcher creates a batcher with the given coalescing window
// (DefaultBatchMaxAge when zero or negative).
func NewRequestBatcher(maxAge time.Duration) *RequestBatcher {
	if maxAge <= 0 {
		maxAge = DefaultBatchMaxAge
	}
	return &RequestBatcher{
		maxAge:  maxAge,
		now:     time.Now,
		entries: make(map[string]*batchEntry),
	}
}

// Do returns the shared result for key when a fresh entry exists, invoking
// producer exactly once otherwise. The second return value reports whether
// the call was absorbed by an existing entry.
func (b *RequestBatcher) Do(ctx context.Context, key string, producer func(context.Context) (*Response, error)) (*Response, bool, error) {
	b.mu.Lock()
	if entry, ok := b.entries[key]; ok && b.now().Sub(entry.createdAt) < b.maxAge {
		b.mu.Unlock()
		select {
		case <-entry.done:
			return entry.resp, true, entry.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	entry := &batchEntry{done: make(chan struct{}), createdAt: b.now()}
	b.entries[key] = entry
	if len(b.entries) > batchSweepThreshold {
		b.sweepLocked()
	}
	b.mu.Unlock()

	entry.resp, entry.err = producer(ctx)
	close(entry.done)
	return entry.resp, false, entry.err
}

// sweepLocked removes entries older than maxAge. Callers hold b.mu.
func (b *RequestBatcher) sweepLocked() {
	now := b.now()
	for key, entry := range b.entries {
		if now.Sub(entry.createdAt) >= b.maxAge {
			delete(b.entries, key)
		}
	}
}

// Cleanup removes aged-out entries immediately.
func (b *RequestBatcher) Cleanup() {
	b.mu.Lock()
	b.sweepLocked()
	b.mu.Unlock()
}

// Len returns the number of tracked entries.
func (b *RequestBatcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
