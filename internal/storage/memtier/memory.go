// Package memtier implements the in-process, last-resort storage tier. Data
// held here does not survive a restart; it exists so the store can keep
// serving a consistent cart after every persistent tier has refused a write.
package memtier

import (
	"context"
	"sync"

	"github.com/utafrali/cartstore/internal/storage"
)

// Tier is a map-backed storage tier. A non-zero capacity bounds the total
// bytes held, so quota behavior can be exercised in tests.
type Tier struct {
	mu       sync.RWMutex
	data     map[string][]byte
	capacity int
	used     int
}

// New creates a memory tier. capacity <= 0 means unbounded.
func New(capacity int) *Tier {
	return &Tier{
		data:     make(map[string][]byte),
		capacity: capacity,
	}
}

// Name identifies the tier in logs and metrics.
func (t *Tier) Name() string { return "memory" }

// Read returns the value stored under key.
func (t *Tier) Read(_ context.Context, key string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	value, ok := t.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Write stores value under key, enforcing the byte capacity if one is set.
func (t *Tier) Write(_ context.Context, key string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.used - len(t.data[key]) + len(value)
	if t.capacity > 0 && next > t.capacity {
		return storage.ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	t.data[key] = stored
	t.used = next
	return nil
}

// Delete removes the value under key.
func (t *Tier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.used -= len(t.data[key])
	delete(t.data, key)
	return nil
}

// Reclaim removes every key except keep.
func (t *Tier) Reclaim(_ context.Context, keep string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.data {
		if k == keep {
			continue
		}
		t.used -= len(t.data[k])
		delete(t.data, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (t *Tier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
