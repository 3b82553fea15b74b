package chainstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir, err := os.MkdirTemp("", "chainstore-test")
	require.NoError(t, err)

	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := Open(filepath.Join(dir, "chain.db"))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestGetLastProcessedDefaultsToZero(t *testing.T) {
	store := newTestStore(t)

	block, err := store.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(0), block)
}

func TestSetLastProcessedIsIdempotentUpsert(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetLastProcessed("A", 1000))

	block, err := store.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(1000), block)

	require.NoError(t, store.SetLastProcessed("A", 1099))

	block, err = store.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(1099), block)
}

func TestChainsAreIndependent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetLastProcessed("A", 500))
	require.NoError(t, store.SetLastProcessed("B", 900))

	a, err := store.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(500), a)

	b, err := store.GetLastProcessed("B")
	require.NoError(t, err)
	require.Equal(t, uint64(900), b)
}
