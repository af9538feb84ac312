package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
	"github.com/poiesic/basicdb/storage/badger"
	"github.com/poiesic/basicdb/storage/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFactory func(t *testing.T) storage.Backend

var backends = map[string]backendFactory{
	"badger": func(t *testing.T) storage.Backend {
		b, err := badger.NewMemoryBackend()
		require.NoError(t, err)
		return b
	},
	"bolt": func(t *testing.T) storage.Backend {
		b, err := bolt.OpenBackend(filepath.Join(t.TempDir(), "engine.db"))
		require.NoError(t, err)
		return b
	},
}

// forEachBackend runs fn once per storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, f *Factory)) {
	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			f := NewFactory(newBackend(t))
			t.Cleanup(func() { f.Close() })
			fn(t, f)
		})
	}
}

func newFactory(t *testing.T) *Factory {
	t.Helper()
	f := NewFactory(backends["badger"](t))
	t.Cleanup(func() { f.Close() })
	return f
}

// openPeople opens a database with a "people" store keyed by "id" with a
// generator, a unique "byEmail" index and a multiEntry "byTag" index.
func openPeople(t *testing.T, f *Factory) *Database {
	t.Helper()
	ctx := context.Background()
	db, err := f.Open(ctx, "app", 1, func(vc *VersionChange) error {
		store, err := vc.CreateObjectStore("people", core.StoreOptions{KeyPath: core.Path("id"), AutoIncrement: true})
		if err != nil {
			return err
		}
		if _, err := store.CreateIndex(ctx, "byEmail", core.Path("email"), core.IndexOptions{Unique: true}); err != nil {
			return err
		}
		if _, err := store.CreateIndex(ctx, "byName", core.Path("name"), core.IndexOptions{}); err != nil {
			return err
		}
		_, err = store.CreateIndex(ctx, "byTag", core.Path("tags"), core.IndexOptions{MultiEntry: true})
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func update(t *testing.T, db *Database, fn func(s *ObjectStore) error) error {
	t.Helper()
	return db.Update(context.Background(), func(tx *Transaction) error {
		s, err := tx.ObjectStore("people")
		require.NoError(t, err)
		return fn(s)
	}, "people")
}

func view(t *testing.T, db *Database, fn func(s *ObjectStore) error) error {
	t.Helper()
	return db.View(context.Background(), func(tx *Transaction) error {
		s, err := tx.ObjectStore("people")
		require.NoError(t, err)
		return fn(s)
	}, "people")
}

func TestOpen_CreatesDatabase(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		ctx := context.Background()
		var calls int
		db, err := f.Open(ctx, "fresh", 0, func(vc *VersionChange) error {
			calls++
			assert.Equal(t, uint64(0), vc.OldVersion())
			assert.Equal(t, uint64(1), vc.NewVersion())
			_, err := vc.CreateObjectStore("s", core.StoreOptions{})
			return err
		})
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, 1, calls)
		assert.Equal(t, "fresh", db.Name())
		assert.Equal(t, uint64(1), db.Version())
		assert.Equal(t, []string{"s"}, db.ObjectStoreNames())
		assert.NotEmpty(t, db.ID())

		infos, err := f.Databases(ctx)
		require.NoError(t, err)
		assert.Equal(t, []DatabaseInfo{{Name: "fresh", Version: 1}}, infos)
	})
}

func TestOpen_Versions(t *testing.T) {
	f := newFactory(t)
	ctx := context.Background()

	db, err := f.Open(ctx, "v", 2, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Same version and version 0 skip the hook.
	for _, v := range []uint64{0, 2} {
		db, err = f.Open(ctx, "v", v, func(*VersionChange) error {
			t.Fatal("upgrade hook must not run")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), db.Version())
		require.NoError(t, db.Close())
	}

	_, err = f.Open(ctx, "v", 1, nil)
	assert.ErrorIs(t, err, ErrVersion)
	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "open", re.Op)
	assert.Equal(t, "v", re.Database)

	db, err = f.Open(ctx, "v", 5, func(vc *VersionChange) error {
		assert.Equal(t, uint64(2), vc.OldVersion())
		assert.Equal(t, uint64(5), vc.NewVersion())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), db.Version())
	require.NoError(t, db.Close())
}

func TestOpen_UpgradeAbortLeavesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		ctx := context.Background()
		boom := errors.New("boom")

		_, err := f.Open(ctx, "x", 1, func(vc *VersionChange) error {
			s, err := vc.CreateObjectStore("s", core.StoreOptions{KeyPath: core.Path("id")})
			require.NoError(t, err)
			_, err = s.Add(ctx, map[string]any{"id": 1}, nil)
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, ErrAbort)
		assert.ErrorIs(t, err, boom)

		infos, err := f.Databases(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)

		db, err := f.Open(ctx, "x", 1, nil)
		require.NoError(t, err)
		defer db.Close()
		assert.Empty(t, db.ObjectStoreNames())
	})
}

func TestOpen_BlockedByOpenConnection(t *testing.T) {
	f := newFactory(t)
	ctx := context.Background()

	db, err := f.Open(ctx, "b", 1, nil)
	require.NoError(t, err)

	_, err = f.Open(ctx, "b", 2, nil)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.ErrorIs(t, f.DeleteDatabase(ctx, "b"), ErrBlocked)

	// A second connection at the same version is fine.
	other, err := f.Open(ctx, "b", 1, nil)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	db, err = f.Open(ctx, "b", 2, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestDeleteDatabase(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		ctx := context.Background()
		db := openPeople(t, f)
		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			for i := 0; i < 5; i++ {
				if _, err := s.Add(ctx, map[string]any{"name": "n"}, nil); err != nil {
					return err
				}
			}
			return nil
		}))
		require.NoError(t, db.Close())

		require.NoError(t, f.DeleteDatabase(ctx, "app"))
		require.NoError(t, f.DeleteDatabase(ctx, "app"))
		require.NoError(t, f.DeleteDatabase(ctx, "never-existed"))

		infos, err := f.Databases(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)

		// Recreating starts empty with a fresh generator.
		db = openPeople(t, f)
		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			n, err := s.Count(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
			key, err := s.Add(ctx, map[string]any{"name": "first"}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(1), key)
			return nil
		}))
	})
}

func TestDatabase_CloseAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		ctx := context.Background()
		db := openPeople(t, f)
		other, err := f.Open(ctx, "app", 0, nil)
		require.NoError(t, err)

		err = db.CloseAndDelete(ctx)
		assert.ErrorIs(t, err, ErrBlocked)
		assert.False(t, db.IsClosed(), "a blocked delete leaves the connection open")
		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			_, err := s.Count(ctx, nil)
			return err
		}))

		require.NoError(t, other.Close())
		require.NoError(t, db.CloseAndDelete(ctx))
		assert.True(t, db.IsClosed())

		infos, err := f.Databases(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})
}

func TestTransaction_Lifecycle(t *testing.T) {
	f := newFactory(t)
	db := openPeople(t, f)
	ctx := context.Background()

	_, err := db.Transaction(ReadOnly)
	assert.ErrorIs(t, err, ErrInvalidAccess)
	_, err = db.Transaction(ReadOnly, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.Transaction(ModeVersionChange, "people")
	assert.ErrorIs(t, err, ErrInvalidAccess)

	tx, err := db.Transaction(ReadOnly, "people")
	require.NoError(t, err)
	assert.Equal(t, ReadOnly, tx.Mode())
	assert.Equal(t, []string{"people"}, tx.ObjectStoreNames())
	s, err := tx.ObjectStore("people")
	require.NoError(t, err)

	_, err = s.Add(ctx, map[string]any{"name": "x"}, nil)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.Clear(ctx), ErrReadOnly)

	require.NoError(t, tx.Commit())
	assert.False(t, tx.Active())
	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrTransactionInactive)
	assert.ErrorIs(t, tx.Commit(), ErrTransactionInactive)
	assert.ErrorIs(t, tx.Abort(), ErrTransactionInactive)

	tx, err = db.Transaction(ReadWrite, "people")
	require.NoError(t, err)
	s, err = tx.ObjectStore("people")
	require.NoError(t, err)
	_, err = s.Add(ctx, map[string]any{"name": "discarded"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Abort())

	require.NoError(t, view(t, db, func(s *ObjectStore) error {
		n, err := s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))

	// Schema changes outside an upgrade are rejected.
	require.NoError(t, update(t, db, func(s *ObjectStore) error {
		_, err := s.CreateIndex(ctx, "late", core.Path("x"), core.IndexOptions{})
		assert.ErrorIs(t, err, ErrInvalidState)
		return nil
	}))

	require.NoError(t, db.Close())
	_, err = db.Transaction(ReadOnly, "people")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestObjectStore_AddGetDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		ctx := context.Background()
		db := openPeople(t, f)

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			key, err := s.Add(ctx, map[string]any{"name": "ada", "email": "ada@example.com"}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(1), key)

			key, err = s.Add(ctx, map[string]any{"name": "grace"}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(2), key)

			// Explicit numeric keys move the generator forward.
			key, err = s.Add(ctx, map[string]any{"id": 10, "name": "alan"}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(10), key)

			key, err = s.Add(ctx, map[string]any{"name": "edsger"}, nil)
			require.NoError(t, err)
			assert.Equal(t, float64(11), key)

			_, err = s.Add(ctx, map[string]any{"id": 1, "name": "dup"}, nil)
			assert.ErrorIs(t, err, ErrConstraint)

			_, err = s.Add(ctx, map[string]any{"id": true}, nil)
			assert.ErrorIs(t, err, ErrData)

			_, err = s.Add(ctx, map[string]any{"name": "x"}, "explicit")
			assert.ErrorIs(t, err, ErrData)

			_, err = s.Add(ctx, map[string]any{"f": func() {}}, nil)
			assert.ErrorIs(t, err, core.ErrDataClone)
			return nil
		}))

		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			rec, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, core.Record{"id": float64(1), "name": "ada", "email": "ada@example.com"}, rec)

			rec, err = s.Get(ctx, 99)
			require.NoError(t, err)
			assert.Nil(t, rec)

			_, err = s.Get(ctx, nil)
			assert.ErrorIs(t, err, ErrData)

			key, err := s.GetKey(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, float64(10), key)

			n, err := s.Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			return nil
		}))

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			require.NoError(t, s.Delete(ctx, 1))
			require.NoError(t, s.Delete(ctx, 12345))
			return nil
		}))

		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			rec, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.Nil(t, rec)

			idx, err := s.Index("byEmail")
			require.NoError(t, err)
			rec, err = idx.Get(ctx, "ada@example.com")
			require.NoError(t, err)
			assert.Nil(t, rec, "index entries are removed with the record")
			return nil
		}))
	})
}

func TestObjectStore_ConcurrentWriters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		db := openPeople(t, f)
		ctx := context.Background()

		const writers = 16
		keys := make([]float64, writers)
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = db.Update(ctx, func(tx *Transaction) error {
					s, err := tx.ObjectStore("people")
					if err != nil {
						return err
					}
					key, err := s.Add(ctx, map[string]any{"name": "w"}, nil)
					if err != nil {
						return err
					}
					keys[i] = key.(float64)
					return nil
				}, "people")
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		sort.Float64s(keys)
		for i, k := range keys {
			assert.Equal(t, float64(i+1), k)
		}
	})
}

func TestObjectStore_Put(t *testing.T) {
	f := newFactory(t)
	db := openPeople(t, f)
	ctx := context.Background()

	require.NoError(t, update(t, db, func(s *ObjectStore) error {
		_, err := s.Put(ctx, map[string]any{"id": 1, "name": "ada", "tags": []any{"a", "b"}}, nil)
		require.NoError(t, err)
		_, err = s.Put(ctx, map[string]any{"id": 1, "name": "ada l", "tags": []any{"c"}}, nil)
		require.NoError(t, err)
		return nil
	}))

	require.NoError(t, view(t, db, func(s *ObjectStore) error {
		rec, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "ada l", rec["name"])

		byTag, err := s.Index("byTag")
		require.NoError(t, err)
		n, err := byTag.Count(ctx, "a")
		require.NoError(t, err)
		assert.Zero(t, n, "stale index entries are replaced")
		n, err = byTag.Count(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		byName, err := s.Index("byName")
		require.NoError(t, err)
		rec, err = byName.Get(ctx, "ada")
		require.NoError(t, err)
		assert.Nil(t, rec)
		return nil
	}))
}

func TestObjectStore_UniqueIndex(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		db := openPeople(t, f)
		ctx := context.Background()

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			_, err := s.Add(ctx, map[string]any{"id": 1, "email": "a@x"}, nil)
			require.NoError(t, err)

			_, err = s.Add(ctx, map[string]any{"id": 2, "email": "a@x"}, nil)
			assert.ErrorIs(t, err, ErrConstraint)

			// Rewriting the owner of the key is allowed.
			_, err = s.Put(ctx, map[string]any{"id": 1, "email": "a@x", "v": 2}, nil)
			require.NoError(t, err)
			return nil
		}))

		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			n, err := s.Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			return nil
		}))
	})
}

func TestObjectStore_OutOfLineKeys(t *testing.T) {
	f := newFactory(t)
	ctx := context.Background()

	db, err := f.Open(ctx, "ool", 1, func(vc *VersionChange) error {
		if _, err := vc.CreateObjectStore("plain", core.StoreOptions{}); err != nil {
			return err
		}
		_, err := vc.CreateObjectStore("counter", core.StoreOptions{AutoIncrement: true})
		return err
	})
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(ctx, func(tx *Transaction) error {
		plain, err := tx.ObjectStore("plain")
		require.NoError(t, err)

		_, err = plain.Add(ctx, map[string]any{"v": 1}, nil)
		assert.ErrorIs(t, err, ErrData)

		key, err := plain.Add(ctx, map[string]any{"v": 1}, []any{"a", 1})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", float64(1)}, key)

		counter, err := tx.ObjectStore("counter")
		require.NoError(t, err)
		key, err = counter.Add(ctx, map[string]any{"v": 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, float64(1), key)

		rec, err := counter.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, core.Record{"v": float64(1)}, rec, "out-of-line keys are not injected")
		return nil
	}, "plain", "counter")
	require.NoError(t, err)
}

func TestObjectStore_RangesAndCursors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		db := openPeople(t, f)
		ctx := context.Background()

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			for i := 1; i <= 6; i++ {
				if _, err := s.Add(ctx, map[string]any{"id": i}, nil); err != nil {
					return err
				}
			}
			return nil
		}))

		keysOf := func(recs []core.Record) []any {
			out := []any{}
			for _, r := range recs {
				out = append(out, r["id"])
			}
			return out
		}

		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			all, err := s.GetAll(ctx, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}, keysOf(all))

			limited, err := s.GetAll(ctx, nil, 2)
			require.NoError(t, err)
			assert.Equal(t, []any{1.0, 2.0}, keysOf(limited))

			rng, err := core.Bound(2, 5, true, false)
			require.NoError(t, err)
			ranged, err := s.GetAll(ctx, rng, 0)
			require.NoError(t, err)
			assert.Equal(t, []any{3.0, 4.0, 5.0}, keysOf(ranged))

			keys, err := s.GetAllKeys(ctx, rng, 0)
			require.NoError(t, err)
			assert.Equal(t, []core.Key{3.0, 4.0, 5.0}, keys)

			n, err := s.Count(ctx, rng)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			c, err := s.OpenCursor(ctx, rng, Prev)
			require.NoError(t, err)
			var got []core.Key
			for c.Next() {
				got = append(got, c.PrimaryKey())
				assert.Equal(t, c.PrimaryKey(), c.Value()["id"])
			}
			require.NoError(t, c.Err())
			assert.Equal(t, []core.Key{5.0, 4.0, 3.0}, got)
			c.Close()

			upper, err := core.UpperBound(3, true)
			require.NoError(t, err)
			c, err = s.OpenKeyCursor(ctx, upper, Prev)
			require.NoError(t, err)
			got = nil
			for c.Next() {
				got = append(got, c.Key())
				assert.Nil(t, c.Value())
			}
			assert.Equal(t, []core.Key{2.0, 1.0}, got)

			rec, err := s.Get(ctx, rng)
			require.NoError(t, err)
			assert.Equal(t, 3.0, rec["id"])
			return nil
		}))

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			rng, err := core.LowerBound(5, false)
			require.NoError(t, err)
			return s.Delete(ctx, rng)
		}))
		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			keys, err := s.GetAllKeys(ctx, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, []core.Key{1.0, 2.0, 3.0, 4.0}, keys)
			return nil
		}))
	})
}

func TestCursor_ClosedByCommit(t *testing.T) {
	f := newFactory(t)
	db := openPeople(t, f)
	ctx := context.Background()

	require.NoError(t, update(t, db, func(s *ObjectStore) error {
		_, err := s.Add(ctx, map[string]any{"id": 1}, nil)
		return err
	}))

	tx, err := db.Transaction(ReadOnly, "people")
	require.NoError(t, err)
	s, err := tx.ObjectStore("people")
	require.NoError(t, err)
	c, err := s.OpenCursor(ctx, nil, Next)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.False(t, c.Next())
	c.Close()
}

func TestCursor_ContextCancelled(t *testing.T) {
	f := newFactory(t)
	db := openPeople(t, f)

	require.NoError(t, update(t, db, func(s *ObjectStore) error {
		_, err := s.Add(context.Background(), map[string]any{"id": 1}, nil)
		return err
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, view(t, db, func(s *ObjectStore) error {
		c, err := s.OpenCursor(ctx, nil, Next)
		require.NoError(t, err)
		cancel()
		assert.False(t, c.Next())
		assert.ErrorIs(t, c.Err(), context.Canceled)
		return nil
	}))
}

func TestIndex_Lookups(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		db := openPeople(t, f)
		ctx := context.Background()

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			people := []map[string]any{
				{"id": 1, "name": "bob", "tags": []any{"x", "y", "x"}},
				{"id": 2, "name": "alice", "tags": []any{"y"}},
				{"id": 3, "name": "bob", "tags": "z"},
				{"id": 4, "name": "carol"},
				{"id": 5, "tags": []any{true, "y"}},
			}
			for _, p := range people {
				if _, err := s.Add(ctx, p, nil); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, view(t, db, func(s *ObjectStore) error {
			assert.Equal(t, []string{"byEmail", "byName", "byTag"}, s.IndexNames())

			byName, err := s.Index("byName")
			require.NoError(t, err)
			assert.Equal(t, core.Path("name"), byName.KeyPath())
			assert.False(t, byName.Unique())

			rec, err := byName.Get(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, 1.0, rec["id"], "first match in index order")

			key, err := byName.GetKey(ctx, "carol")
			require.NoError(t, err)
			assert.Equal(t, 4.0, key)

			rec, err = byName.Get(ctx, "nobody")
			require.NoError(t, err)
			assert.Nil(t, rec)

			keys, err := byName.GetAllKeys(ctx, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, []core.Key{2.0, 1.0, 3.0, 4.0}, keys, "ordered by name then primary key")

			upper, err := core.UpperBound("bob", false)
			require.NoError(t, err)
			c, err := byName.OpenCursor(ctx, upper, Prev)
			require.NoError(t, err)
			var got []core.Key
			for c.Next() {
				assert.Equal(t, c.Key(), c.Value()["name"])
				got = append(got, c.PrimaryKey())
			}
			require.NoError(t, c.Err())
			assert.Equal(t, []core.Key{3.0, 1.0, 2.0}, got)

			byTag, err := s.Index("byTag")
			require.NoError(t, err)
			assert.True(t, byTag.MultiEntry())
			n, err := byTag.Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 5, n, "x,y for 1; y for 2; z for 3; y for 5")

			keys, err = byTag.GetAllKeys(ctx, "y", 0)
			require.NoError(t, err)
			assert.Equal(t, []core.Key{1.0, 2.0, 5.0}, keys)

			recs, err := byTag.GetAll(ctx, "z", 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, 3.0, recs[0]["id"])

			_, err = s.Index("missing")
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		}))
	})
}

func TestObjectStore_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *Factory) {
		db := openPeople(t, f)
		ctx := context.Background()

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			for i := 0; i < 3; i++ {
				if _, err := s.Add(ctx, map[string]any{"name": "n", "tags": []any{"t"}}, nil); err != nil {
					return err
				}
			}
			return s.Clear(ctx)
		}))

		require.NoError(t, update(t, db, func(s *ObjectStore) error {
			all, err := s.GetAll(ctx, nil, 0)
			require.NoError(t, err)
			assert.NotNil(t, all)
			assert.Empty(t, all)

			byTag, err := s.Index("byTag")
			require.NoError(t, err)
			n, err := byTag.Count(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, n)

			// The generator survives a clear.
			key, err := s.Add(ctx, map[string]any{"name": "after"}, nil)
			require.NoError(t, err)
			assert.Equal(t, 4.0, key)
			return nil
		}))
	})
}

func TestVersionChange_SchemaEvolution(t *testing.T) {
	f := newFactory(t)
	ctx := context.Background()

	db, err := f.Open(ctx, "evo", 1, func(vc *VersionChange) error {
		s, err := vc.CreateObjectStore("items", core.StoreOptions{KeyPath: core.Path("id")})
		if err != nil {
			return err
		}
		for i, color := range []string{"red", "blue", "red"} {
			if _, err := s.Add(ctx, map[string]any{"id": i + 1, "color": color}, nil); err != nil {
				return err
			}
		}
		_, err = vc.CreateObjectStore("items", core.StoreOptions{})
		assert.ErrorIs(t, err, ErrConstraint)
		_, err = vc.CreateObjectStore("bad", core.StoreOptions{KeyPath: core.CompoundPath("a", "b"), AutoIncrement: true})
		assert.ErrorIs(t, err, ErrInvalidAccess)
		_, err = vc.CreateObjectStore("doomed", core.StoreOptions{})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// A unique index over duplicate values aborts the upgrade.
	_, err = f.Open(ctx, "evo", 2, func(vc *VersionChange) error {
		s, err := vc.ObjectStore("items")
		require.NoError(t, err)
		_, err = s.CreateIndex(ctx, "byColor", core.Path("color"), core.IndexOptions{Unique: true})
		return err
	})
	assert.ErrorIs(t, err, ErrAbort)
	assert.ErrorIs(t, err, ErrConstraint)

	db, err = f.Open(ctx, "evo", 2, func(vc *VersionChange) error {
		assert.Equal(t, []string{"doomed", "items"}, vc.ObjectStoreNames())
		require.NoError(t, vc.DeleteObjectStore("doomed"))
		assert.ErrorIs(t, vc.DeleteObjectStore("doomed"), ErrNotFound)

		s, err := vc.ObjectStore("items")
		require.NoError(t, err)
		_, err = s.CreateIndex(ctx, "byColor", core.Path("color"), core.IndexOptions{})
		require.NoError(t, err)
		_, err = s.CreateIndex(ctx, "byColor", core.Path("color"), core.IndexOptions{})
		assert.ErrorIs(t, err, ErrConstraint)
		_, err = s.CreateIndex(ctx, "tmp", core.Path("id"), core.IndexOptions{})
		require.NoError(t, err)
		return s.DeleteIndex(ctx, "tmp")
	})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, []string{"items"}, db.ObjectStoreNames())
	require.NoError(t, db.View(ctx, func(tx *Transaction) error {
		s, err := tx.ObjectStore("items")
		require.NoError(t, err)
		assert.Equal(t, []string{"byColor"}, s.IndexNames())

		idx, err := s.Index("byColor")
		require.NoError(t, err)
		keys, err := idx.GetAllKeys(ctx, "red", 0)
		require.NoError(t, err)
		assert.Equal(t, []core.Key{1.0, 3.0}, keys, "existing records are indexed")
		return nil
	}, "items"))
}

func TestFactory_Close(t *testing.T) {
	backend, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	f := NewFactory(backend)
	ctx := context.Background()

	db, err := f.Open(ctx, "c", 1, nil)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.True(t, db.IsClosed())
	assert.True(t, backend.IsClosed())

	_, err = f.Open(ctx, "c", 1, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, f.DeleteDatabase(ctx, "c"), ErrInvalidState)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ReadOnly, false},
		{"readonly", ReadOnly, false},
		{"readwrite", ReadWrite, false},
		{"versionchange", ReadOnly, true},
	}
	assert.Equal(t, "versionchange", ModeVersionChange.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAccess)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}
