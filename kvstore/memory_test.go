package kvstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "user/alice")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	v1, err := store.Put(ctx, "user/alice", []byte(`{"role":"owner"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	entry, err := store.Get(ctx, "user/alice")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"role":"owner"}`), entry.Value)
	assert.Equal(t, v1, entry.Version)

	v2, err := store.Put(ctx, "user/alice", []byte(`{"role":"requester"}`), v1)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	require.NoError(t, store.Delete(ctx, "user/alice", v2))
	_, err = store.Get(ctx, "user/alice")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMemoryStore_ConflictOnStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v1, err := store.Put(ctx, "asset/a1", []byte("one"), 0)
	require.NoError(t, err)
	_, err = store.Put(ctx, "asset/a1", []byte("two"), v1)
	require.NoError(t, err)

	// A writer still holding v1 must lose.
	_, err = store.Put(ctx, "asset/a1", []byte("stale"), v1)
	require.Error(t, err)
	assert.True(t, interfaces.IsTransient(err), "stale write must classify as transient")

	var se *interfaces.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, interfaces.KindConflict, se.Kind)
}

func TestMemoryStore_CreateRace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Two concurrent creators of the same key: exactly one succeeds.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Put(ctx, "user/bob", []byte("x"), 0)
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		if err == nil {
			successes++
		} else if interfaces.IsTransient(err) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestMemoryStore_RangePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, key := range []string{"asset/a1", "asset/a2", "user/alice"} {
		_, err := store.Put(ctx, key, []byte(key), 0)
		require.NoError(t, err)
	}

	var keys []string
	err := store.Range(ctx, "asset/", func(e interfaces.KVEntry) error {
		keys = append(keys, e.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"asset/a1", "asset/a2"}, keys)
}

func TestMemoryStore_DeleteSemantics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Delete(ctx, "asset/none", 1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	v, err := store.Put(ctx, "asset/a1", []byte("x"), 0)
	require.NoError(t, err)

	err = store.Delete(ctx, "asset/a1", v+7)
	assert.True(t, interfaces.IsTransient(err))

	require.NoError(t, store.Delete(ctx, "asset/a1", v))
}
