package bolt

import (
	"path/filepath"
	"testing"

	"github.com/poiesic/basicdb/storage"
	"github.com/poiesic/basicdb/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "data.db")
	backend, err := OpenBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	assert.FileExists(t, path)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
	require.NoError(t, backend.Close())

	_, err = backend.Begin(true)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackend_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		backend, err := OpenBackend(filepath.Join(t.TempDir(), "data.db"))
		require.NoError(t, err)
		t.Cleanup(func() { backend.Close() })
		return backend
	})
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	backend, err := OpenBackend(path)
	require.NoError(t, err)
	require.NoError(t, storage.WithTx(backend, true, func(tx storage.Txn) error {
		return tx.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, storage.WithTx(backend, false, func(tx storage.Txn) error {
		v, err := tx.Get([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
		return nil
	}))
}

func TestCommitTwice(t *testing.T) {
	backend, err := OpenBackend(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	defer backend.Close()

	tx, err := backend.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), storage.ErrTransactionFailed)
}
