package interfaces

import "context"

// KVEntry is one committed key-value pair together with the version the
// store assigned to its latest write. Versions are opaque except that they
// strictly increase per key and 0 means "key absent".
type KVEntry struct {
	Key     string
	Value   []byte
	Version uint64
}

// KVStore is the transactional key-value port the ledger engine runs
// against. Implementations enforce optimistic concurrency per key: a write
// carrying a stale expected version fails with a StoreError of kind
// KindConflict, which the transaction gateway classifies as transient.
//
// Cross-key atomicity is not part of the contract.
type KVStore interface {
	// Get returns the entry stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (KVEntry, error)

	// Put writes value under key if the key's current version equals
	// expected. expected 0 requires the key to be absent (create). Returns
	// the version assigned to the write.
	Put(ctx context.Context, key string, value []byte, expected uint64) (uint64, error)

	// Delete removes key if its current version equals expected. Deleting
	// an absent key returns ErrNotFound.
	Delete(ctx context.Context, key string, expected uint64) error

	// Range calls fn for every entry whose key starts with prefix, in
	// undefined order. fn returning an error stops the scan.
	Range(ctx context.Context, prefix string, fn func(KVEntry) error) error
}
