// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storagetest provides a conformance suite for storage.Backend
// implementations.
package storagetest

import (
	"fmt"
	"testing"

	"github.com/poiesic/basicdb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend. The backend is closed by the
// factory's own cleanup.
type Factory func(t *testing.T) storage.Backend

// Run executes the conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("GetSetDelete", func(t *testing.T) { testGetSetDelete(t, newBackend(t)) })
	t.Run("Discard", func(t *testing.T) { testDiscard(t, newBackend(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, newBackend(t)) })
	t.Run("CopiesSlices", func(t *testing.T) { testCopiesSlices(t, newBackend(t)) })
	t.Run("IterateForward", func(t *testing.T) { testIterateForward(t, newBackend(t)) })
	t.Run("IterateReverse", func(t *testing.T) { testIterateReverse(t, newBackend(t)) })
	t.Run("Seek", func(t *testing.T) { testSeek(t, newBackend(t)) })
	t.Run("PendingWritesVisible", func(t *testing.T) { testPendingWritesVisible(t, newBackend(t)) })
}

func put(t *testing.T, b storage.Backend, kv ...string) {
	t.Helper()
	require.NoError(t, storage.WithTx(b, true, func(tx storage.Txn) error {
		for i := 0; i+1 < len(kv); i += 2 {
			if err := tx.Set([]byte(kv[i]), []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func collect(t *testing.T, b storage.Backend, prefix string, reverse bool, seek []byte) []string {
	t.Helper()
	var keys []string
	require.NoError(t, storage.WithTx(b, false, func(tx storage.Txn) error {
		it := tx.NewIterator([]byte(prefix), reverse)
		defer it.Close()
		if seek == nil {
			it.Rewind()
		} else {
			it.Seek(seek)
		}
		for ; it.Valid(); it.Next() {
			v, err := it.Value()
			if err != nil {
				return err
			}
			keys = append(keys, fmt.Sprintf("%s=%s", it.Key(), v))
		}
		return nil
	}))
	return keys
}

func testGetSetDelete(t *testing.T, b storage.Backend) {
	put(t, b, "a", "1")

	require.NoError(t, storage.WithTx(b, false, func(tx storage.Txn) error {
		v, err := tx.Get([]byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)

		_, err = tx.Get([]byte("missing"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))

	require.NoError(t, storage.WithTx(b, true, func(tx storage.Txn) error {
		require.NoError(t, tx.Delete([]byte("a")))
		// Deleting a missing key is fine.
		return tx.Delete([]byte("missing"))
	}))

	require.NoError(t, storage.WithTx(b, false, func(tx storage.Txn) error {
		_, err := tx.Get([]byte("a"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}

func testDiscard(t *testing.T, b storage.Backend) {
	tx, err := b.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("a"), []byte("1")))
	tx.Discard()
	tx.Discard()

	require.NoError(t, storage.WithTx(b, false, func(tx storage.Txn) error {
		_, err := tx.Get([]byte("a"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))

	// Discard after Commit is a no-op.
	tx, err = b.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("b"), []byte("2")))
	require.NoError(t, tx.Commit())
	tx.Discard()

	assert.Equal(t, []string{"b=2"}, collect(t, b, "", false, nil))
}

func testReadOnly(t *testing.T, b storage.Backend) {
	err := storage.WithTx(b, false, func(tx storage.Txn) error {
		return tx.Set([]byte("a"), []byte("1"))
	})
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	err = storage.WithTx(b, false, func(tx storage.Txn) error {
		return tx.Delete([]byte("a"))
	})
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}

func testCopiesSlices(t *testing.T, b storage.Backend) {
	key := []byte("key")
	value := []byte("value")
	require.NoError(t, storage.WithTx(b, true, func(tx storage.Txn) error {
		if err := tx.Set(key, value); err != nil {
			return err
		}
		key[0] = 'X'
		value[0] = 'X'
		return nil
	}))

	require.NoError(t, storage.WithTx(b, false, func(tx storage.Txn) error {
		v, err := tx.Get([]byte("key"))
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), v)
		return nil
	}))
}

func testIterateForward(t *testing.T, b storage.Backend) {
	put(t, b, "a1", "x", "b1", "1", "b3", "3", "b2", "2", "c1", "y", "b\xff", "z")

	assert.Equal(t, []string{"b1=1", "b2=2", "b3=3", "b\xff=z"}, collect(t, b, "b", false, nil))
	assert.Empty(t, collect(t, b, "d", false, nil))
	assert.Len(t, collect(t, b, "", false, nil), 6)
}

func testIterateReverse(t *testing.T, b storage.Backend) {
	put(t, b, "a1", "x", "b1", "1", "b3", "3", "b2", "2", "c", "y", "c1", "w")

	assert.Equal(t, []string{"b3=3", "b2=2", "b1=1"}, collect(t, b, "b", true, nil))
	// "c" is the prefix end of "b" and must not leak into the range.
	assert.Equal(t, []string{"c1=w", "c=y", "b3=3", "b2=2", "b1=1", "a1=x"}, collect(t, b, "", true, nil))
	assert.Empty(t, collect(t, b, "d", true, nil))
}

func testSeek(t *testing.T, b storage.Backend) {
	put(t, b, "k1", "1", "k3", "3", "k5", "5")

	assert.Equal(t, []string{"k3=3", "k5=5"}, collect(t, b, "k", false, []byte("k2")))
	assert.Equal(t, []string{"k3=3", "k5=5"}, collect(t, b, "k", false, []byte("k3")))
	assert.Equal(t, []string{"k3=3", "k1=1"}, collect(t, b, "k", true, []byte("k4")))
	assert.Equal(t, []string{"k3=3", "k1=1"}, collect(t, b, "k", true, []byte("k3")))
	assert.Empty(t, collect(t, b, "k", true, []byte("k0")))
}

func testPendingWritesVisible(t *testing.T, b storage.Backend) {
	put(t, b, "p1", "1")

	require.NoError(t, storage.WithTx(b, true, func(tx storage.Txn) error {
		require.NoError(t, tx.Set([]byte("p2"), []byte("2")))

		v, err := tx.Get([]byte("p2"))
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), v)

		it := tx.NewIterator([]byte("p"), false)
		defer it.Close()
		var n int
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		assert.Equal(t, 2, n)
		return nil
	}))
}
