package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends yields a fresh store per backend so every contract test runs
// against both the memory and sqlite implementations.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	memory := NewMemoryStore()
	t.Cleanup(func() { _ = memory.Close() })

	return map[string]Store{
		"memory": memory,
		"sqlite": sqlite,
	}
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, s.Put(ctx, "a", []byte("one")))
			value, version, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), value)
			assert.Equal(t, uint64(1), version)

			require.NoError(t, s.Put(ctx, "a", []byte("two")))
			value, version, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), value)
			assert.Equal(t, uint64(2), version)
		})
	}
}

func TestStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Expected 0 creates only when absent.
			require.NoError(t, s.CompareAndSet(ctx, "k", 0, []byte("v1")))
			assert.ErrorIs(t, s.CompareAndSet(ctx, "k", 0, []byte("v1")), ErrVersionMismatch)

			// Matching version advances it by one.
			require.NoError(t, s.CompareAndSet(ctx, "k", 1, []byte("v2")))
			value, version, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)
			assert.Equal(t, uint64(2), version)

			// Stale expected version is refused without writing.
			assert.ErrorIs(t, s.CompareAndSet(ctx, "k", 1, []byte("v3")), ErrVersionMismatch)
			value, _, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)

			// CAS on a missing key with nonzero expected fails.
			assert.ErrorIs(t, s.CompareAndSet(ctx, "absent", 5, []byte("v")), ErrVersionMismatch)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Delete(ctx, "gone"), ErrKeyNotFound)

			require.NoError(t, s.Put(ctx, "d", []byte("x")))
			require.NoError(t, s.Delete(ctx, "d"))
			_, _, err := s.Get(ctx, "d")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestStoreScanOrdered(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "idx:b", []byte("2")))
			require.NoError(t, s.Put(ctx, "idx:a", []byte("1")))
			require.NoError(t, s.Put(ctx, "idx:c", []byte("3")))
			require.NoError(t, s.Put(ctx, "other:z", []byte("9")))

			entries, err := s.Scan(ctx, "idx:")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, "idx:a", entries[0].Key)
			assert.Equal(t, "idx:b", entries[1].Key)
			assert.Equal(t, "idx:c", entries[2].Key)
			assert.Equal(t, []byte("1"), entries[0].Value)

			empty, err := s.Scan(ctx, "nope:")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "idx;", PrefixEnd("idx:"))
	assert.Equal(t, "b", PrefixEnd("a"))
	assert.Equal(t, "", PrefixEnd(""))
	assert.Equal(t, "b", PrefixEnd("a\xff\xff"))
	assert.Equal(t, "", PrefixEnd("\xff"))
}
