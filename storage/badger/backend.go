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

package badger

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/basicdb/storage"
)

// Backend wraps a BadgerDB instance and implements storage.Backend.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger BadgerDB reports through.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, opts ...Option) (*Backend, error) {
	b := &Backend{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	var bopts badger.Options

	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		bopts = badger.DefaultOptions(filePath)
	}

	bopts.Logger = &badgerLoggerAdapter{logger: b.logger.With("component", "badger")}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	b.db = db
	return b, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// Begin starts a BadgerDB transaction.
// If update is true, creates a read-write transaction.
func (b *Backend) Begin(update bool) (storage.Txn, error) {
	if b.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return &txn{tx: b.db.NewTransaction(update), update: update}, nil
}

type txn struct {
	tx     *badger.Txn
	update bool
	done   bool
}

func (t *txn) Get(key []byte) ([]byte, error) {
	item, err := t.tx.Get(key)
	if err != nil {
		return nil, mapError(err)
	}
	return item.ValueCopy(nil)
}

func (t *txn) Set(key, value []byte) error {
	if !t.update {
		return storage.ErrReadOnly
	}
	// Badger keeps references to both slices until commit.
	return mapError(t.tx.Set(bytes.Clone(key), bytes.Clone(value)))
}

func (t *txn) Delete(key []byte) error {
	if !t.update {
		return storage.ErrReadOnly
	}
	return mapError(t.tx.Delete(bytes.Clone(key)))
}

func (t *txn) NewIterator(prefix []byte, reverse bool) storage.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	return &iterator{
		it:      t.tx.NewIterator(opts),
		prefix:  bytes.Clone(prefix),
		reverse: reverse,
	}
}

func (t *txn) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", storage.ErrTransactionFailed)
	}
	t.done = true
	if !t.update {
		t.tx.Discard()
		return nil
	}
	return mapError(t.tx.Commit())
}

func (t *txn) Discard() {
	t.done = true
	t.tx.Discard()
}

type iterator struct {
	it      *badger.Iterator
	prefix  []byte
	reverse bool
}

func (i *iterator) Rewind() {
	if !i.reverse {
		i.it.Seek(i.prefix)
		return
	}
	end := storage.PrefixEnd(i.prefix)
	if end == nil {
		i.it.Rewind()
		return
	}
	// Reverse seek lands on the largest key <= end; end itself is outside
	// the prefix.
	i.it.Seek(end)
	if i.it.Valid() && bytes.Equal(i.it.Item().Key(), end) {
		i.it.Next()
	}
}

func (i *iterator) Seek(key []byte) {
	i.it.Seek(key)
}

func (i *iterator) Valid() bool {
	return i.it.ValidForPrefix(i.prefix)
}

func (i *iterator) Next() {
	i.it.Next()
}

func (i *iterator) Key() []byte {
	return i.it.Item().KeyCopy(nil)
}

func (i *iterator) Value() ([]byte, error) {
	return i.it.Item().ValueCopy(nil)
}

func (i *iterator) Close() {
	i.it.Close()
}

// mapError translates BadgerDB errors into storage errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return storage.ErrReadOnly
	case errors.Is(err, badger.ErrEmptyKey):
		return storage.ErrEmptyKey
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrStorageClosed
	case errors.Is(err, badger.ErrConflict),
		errors.Is(err, badger.ErrTxnTooBig),
		errors.Is(err, badger.ErrDiscardedTxn):
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	default:
		return err
	}
}
