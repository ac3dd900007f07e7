package flightcache

import (
	"context"
	"sync"
)

// Storage is the asynchronous key→Entry mapping (spec §4.3). Every method
// is a suspension point (spec §5): between any two Storage calls, the
// orchestrator's view of is-being-updated may be stale and must be
// re-checked by anything that cares.
//
// Offer is an unconditional write — the caller (the Orchestrator) is
// responsible for not overwriting newer data with older. Release removes
// a key; releasing an absent key is not an error, mirroring
// pkg/tokenstore.Store.Delete's idempotent-delete contract in the teacher
// repo.
type Storage[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Offer(ctx context.Context, key string, entry Entry[V]) error
	Release(ctx context.Context, key string) error
}

// MemoryStorage is the default, in-process Storage: a mutex-guarded map.
// It is adapted from the teacher's pkg/tokenstore.MemoryStore, generalized
// from a fixed Token payload to a generic Entry[V] and from TTL-on-write
// to the three-timestamp Entry the orchestrator stamps itself.
type MemoryStorage[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

// NewMemoryStorage creates an empty in-memory Storage.
func NewMemoryStorage[V any]() *MemoryStorage[V] {
	return &MemoryStorage[V]{entries: make(map[string]Entry[V])}
}

func (m *MemoryStorage[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStorage[V]) Offer(_ context.Context, key string, entry Entry[V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

func (m *MemoryStorage[V]) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of entries currently held. Intended for tests and
// the demo server's /stats endpoint, not part of the Storage contract.
func (m *MemoryStorage[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
