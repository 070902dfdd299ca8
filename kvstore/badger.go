package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// BadgerStore implements the KVStore port on an embedded Badger database.
// Versions are maintained explicitly in an 8-byte prefix of each value so
// that the optimistic-concurrency contract is identical to every other
// implementation of the port.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func encodeVersioned(value []byte, version uint64) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], version)
	copy(buf[8:], value)
	return buf
}

func decodeVersioned(raw []byte) ([]byte, uint64, error) {
	if len(raw) < 8 {
		return nil, 0, errors.New("corrupt versioned value")
	}
	return raw[8:], binary.BigEndian.Uint64(raw[:8]), nil
}

// Get returns the entry stored under key, or interfaces.ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, key string) (interfaces.KVEntry, error) {
	var entry interfaces.KVEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			value, version, err := decodeVersioned(raw)
			if err != nil {
				return err
			}
			entry = interfaces.KVEntry{
				Key:     key,
				Value:   append([]byte(nil), value...),
				Version: version,
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return interfaces.KVEntry{}, interfaces.ErrNotFound
	}
	if err != nil {
		return interfaces.KVEntry{}, interfaces.NewStoreError(interfaces.KindInternal, "get", key, err)
	}
	return entry, nil
}

// Put writes value under key if the key's current version equals expected.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	var next uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := currentVersion(txn, key)
		if err != nil {
			return err
		}
		if current != expected {
			return interfaces.NewStoreError(interfaces.KindConflict, "put", key, nil)
		}
		next = current + 1
		return txn.Set([]byte(key), encodeVersioned(value, next))
	})
	if err != nil {
		var se *interfaces.StoreError
		if errors.As(err, &se) {
			return 0, err
		}
		if errors.Is(err, badger.ErrConflict) {
			return 0, interfaces.NewStoreError(interfaces.KindConflict, "put", key, err)
		}
		return 0, interfaces.NewStoreError(interfaces.KindInternal, "put", key, err)
	}
	return next, nil
}

// Delete removes key if its current version equals expected.
func (s *BadgerStore) Delete(ctx context.Context, key string, expected uint64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := currentVersion(txn, key)
		if err != nil {
			return err
		}
		if current == 0 {
			return interfaces.ErrNotFound
		}
		if current != expected {
			return interfaces.NewStoreError(interfaces.KindConflict, "delete", key, nil)
		}
		return txn.Delete([]byte(key))
	})
	if err == nil {
		return nil
	}
	var se *interfaces.StoreError
	if errors.As(err, &se) || errors.Is(err, interfaces.ErrNotFound) {
		return err
	}
	if errors.Is(err, badger.ErrConflict) {
		return interfaces.NewStoreError(interfaces.KindConflict, "delete", key, err)
	}
	return interfaces.NewStoreError(interfaces.KindInternal, "delete", key, err)
}

// Range calls fn for every entry whose key starts with prefix.
func (s *BadgerStore) Range(ctx context.Context, prefix string, fn func(interfaces.KVEntry) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(raw []byte) error {
				value, version, err := decodeVersioned(raw)
				if err != nil {
					return err
				}
				return fn(interfaces.KVEntry{
					Key:     key,
					Value:   append([]byte(nil), value...),
					Version: version,
				})
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger range scan: %w", err)
	}
	return nil
}

func currentVersion(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version uint64
	err = item.Value(func(raw []byte) error {
		_, v, err := decodeVersioned(raw)
		version = v
		return err
	})
	return version, err
}
