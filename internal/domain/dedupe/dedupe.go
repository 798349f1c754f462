// Package dedupe tracks idempotency keys for asynchronous audit submissions.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper maps client idempotency keys to the audit they created.
type Deduper interface {
	// Claim records key -> auditID unless key is already held. When it is,
	// the audit ID recorded first is returned with seen set.
	Claim(ctx context.Context, key, auditID string) (existing string, seen bool)

	// Release forgets key so a failed submission can be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key     string
	auditID string
}

// inMemoryDeduper keeps at most maxSize keys and evicts the oldest first.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	maxSize int
	byKey   map[string]*list.Element
	order   *list.List // front is newest
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.byKey = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key, auditID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		return el.Value.(entry).auditID, true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.byKey, oldest.Value.(entry).key)
	}
	d.byKey[key] = d.order.PushFront(entry{key: key, auditID: auditID})
	return auditID, false
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		d.order.Remove(el)
		delete(d.byKey, key)
	}
}

// Size returns the current number of keys held.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
