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

package bolt

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/poiesic/basicdb/storage"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// bucketName is the single bucket every key lives in.
var bucketName = []byte("basicdb")

// InitialMmapSize is the size bbolt maps up front. A write that grows the
// file past the mapped size must remap, which waits for every open read
// transaction to finish; a goroutine that holds a read transaction and
// then writes past this size blocks forever.
const InitialMmapSize = 64 << 20

// Backend implements storage.Backend using bbolt (embedded B+ tree).
// Read transactions must not be held across writes from the same
// goroutine once the file outgrows InitialMmapSize.
type Backend struct {
	db     *bolt.DB
	closed atomic.Bool
	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// OpenBackend creates or opens a bbolt database file at the given path.
// Parent directories are created as needed.
func OpenBackend(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: InitialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	logger := slog.Default().With("component", "bolt")
	logger.Debug("opened bolt backend", "path", path)
	return &Backend{db: db, logger: logger}, nil
}

// Close closes the bbolt database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.closed.Load()
}

// Begin starts a bbolt transaction. bbolt allows one read-write
// transaction at a time; Begin(true) blocks until it is available.
func (b *Backend) Begin(update bool) (storage.Txn, error) {
	if b.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	tx, err := b.db.Begin(update)
	if err != nil {
		return nil, mapError(err)
	}
	return &txn{tx: tx, bucket: tx.Bucket(bucketName), update: update}, nil
}

type txn struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	update bool
	done   bool
}

func (t *txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, mapError(berrors.ErrTxClosed)
	}
	v := t.bucket.Get(key)
	if v == nil {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (t *txn) Set(key, value []byte) error {
	if !t.update {
		return storage.ErrReadOnly
	}
	if t.done {
		return mapError(berrors.ErrTxClosed)
	}
	// bbolt requires both slices to stay valid until the transaction ends.
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	return mapError(t.bucket.Put(bytes.Clone(key), v))
}

func (t *txn) Delete(key []byte) error {
	if !t.update {
		return storage.ErrReadOnly
	}
	if t.done {
		return mapError(berrors.ErrTxClosed)
	}
	return mapError(t.bucket.Delete(key))
}

func (t *txn) NewIterator(prefix []byte, reverse bool) storage.Iterator {
	return &iterator{
		c:       t.bucket.Cursor(),
		prefix:  bytes.Clone(prefix),
		reverse: reverse,
	}
}

func (t *txn) Commit() error {
	if t.done {
		return mapError(berrors.ErrTxClosed)
	}
	t.done = true
	if !t.update {
		return mapError(t.tx.Rollback())
	}
	return mapError(t.tx.Commit())
}

func (t *txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
}

type iterator struct {
	c       *bolt.Cursor
	prefix  []byte
	reverse bool
	key     []byte
	value   []byte
}

func (i *iterator) Rewind() {
	if !i.reverse {
		i.key, i.value = i.c.Seek(i.prefix)
		return
	}
	end := storage.PrefixEnd(i.prefix)
	if end == nil {
		i.key, i.value = i.c.Last()
		return
	}
	if k, _ := i.c.Seek(end); k == nil {
		i.key, i.value = i.c.Last()
	} else {
		i.key, i.value = i.c.Prev()
	}
}

func (i *iterator) Seek(key []byte) {
	k, v := i.c.Seek(key)
	if !i.reverse {
		i.key, i.value = k, v
		return
	}
	switch {
	case k == nil:
		i.key, i.value = i.c.Last()
	case !bytes.Equal(k, key):
		i.key, i.value = i.c.Prev()
	default:
		i.key, i.value = k, v
	}
}

func (i *iterator) Valid() bool {
	return i.key != nil && bytes.HasPrefix(i.key, i.prefix)
}

func (i *iterator) Next() {
	if i.reverse {
		i.key, i.value = i.c.Prev()
	} else {
		i.key, i.value = i.c.Next()
	}
}

func (i *iterator) Key() []byte {
	return bytes.Clone(i.key)
}

func (i *iterator) Value() ([]byte, error) {
	if i.key == nil {
		return nil, storage.ErrNotFound
	}
	v := bytes.Clone(i.value)
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (i *iterator) Close() {
	i.key, i.value = nil, nil
}

// mapError translates bbolt errors into storage errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, berrors.ErrTxNotWritable), errors.Is(err, berrors.ErrDatabaseReadOnly):
		return storage.ErrReadOnly
	case errors.Is(err, berrors.ErrDatabaseNotOpen):
		return storage.ErrStorageClosed
	case errors.Is(err, berrors.ErrKeyRequired):
		return storage.ErrEmptyKey
	case errors.Is(err, berrors.ErrTxClosed):
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	default:
		return err
	}
}
