// Package kvstore provides implementations of the transactional key-value
// port: an in-memory store for tests and single-process deployments, and a
// Badger-backed store for durable ones. Both enforce per-key optimistic
// concurrency and report failures through interfaces.StoreError so the
// transaction gateway can classify them.
package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

type memoryEntry struct {
	value   []byte
	version uint64
}

// MemoryStore is an in-memory KVStore with per-key versioning. It is safe
// for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the entry stored under key, or interfaces.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) (interfaces.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.KVEntry{}, interfaces.NewStoreError(interfaces.KindUnavailable, "get", key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return interfaces.KVEntry{}, interfaces.ErrNotFound
	}
	return interfaces.KVEntry{
		Key:     key,
		Value:   append([]byte(nil), e.value...),
		Version: e.version,
	}, nil
}

// Put writes value under key if the key's current version equals expected.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, interfaces.NewStoreError(interfaces.KindUnavailable, "put", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[key].version
	if current != expected {
		return 0, interfaces.NewStoreError(interfaces.KindConflict, "put", key, nil)
	}

	next := current + 1
	s.entries[key] = memoryEntry{value: append([]byte(nil), value...), version: next}
	return next, nil
}

// Delete removes key if its current version equals expected.
func (s *MemoryStore) Delete(ctx context.Context, key string, expected uint64) error {
	if err := ctx.Err(); err != nil {
		return interfaces.NewStoreError(interfaces.KindUnavailable, "delete", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return interfaces.ErrNotFound
	}
	if e.version != expected {
		return interfaces.NewStoreError(interfaces.KindConflict, "delete", key, nil)
	}
	delete(s.entries, key)
	return nil
}

// Range calls fn for every entry whose key starts with prefix, in key order.
func (s *MemoryStore) Range(ctx context.Context, prefix string, fn func(interfaces.KVEntry) error) error {
	if err := ctx.Err(); err != nil {
		return interfaces.NewStoreError(interfaces.KindUnavailable, "range", prefix, err)
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]interfaces.KVEntry, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k]
		entries = append(entries, interfaces.KVEntry{
			Key:     k,
			Value:   append([]byte(nil), e.value...),
			Version: e.version,
		})
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
