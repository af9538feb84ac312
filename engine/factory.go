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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// purgeBatchSize bounds the keys removed per transaction when a database
// or store is purged.
const purgeBatchSize = 1000

// UpgradeFunc runs inside the version-change transaction of Factory.Open.
// Returning an error aborts the upgrade.
type UpgradeFunc func(vc *VersionChange) error

// DatabaseInfo names a stored database and its version.
type DatabaseInfo struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// Factory opens and deletes databases stored in one backend.
// It is safe for concurrent use.
type Factory struct {
	backend storage.Backend
	logger  *slog.Logger

	// mu serializes Open, DeleteDatabase and connection bookkeeping.
	mu      sync.Mutex
	conns   map[string]map[*Database]struct{}
	writers map[string]*sync.Mutex
	closed  bool
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the factory's logger.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a factory over backend. The factory owns the backend
// and closes it in Close.
func NewFactory(backend storage.Backend, opts ...FactoryOption) *Factory {
	f := &Factory{
		backend: backend,
		logger:  slog.Default(),
		conns:   make(map[string]map[*Database]struct{}),
		writers: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open opens a connection to the named database.
//
// A version of 0 opens the current version, or version 1 when the database
// doesn't exist. When the requested version is above the stored one the
// upgrade hook runs in a version-change transaction; if it fails nothing
// is changed and Open returns ErrAbort. upgrade may be nil.
//
// The upgrade hook must not call back into the factory.
func (f *Factory) Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (*Database, error) {
	const op = "open"
	if err := ctx.Err(); err != nil {
		return nil, requestError(op, name, "", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, requestError(op, name, "", fmt.Errorf("%w: factory is closed", ErrInvalidState))
	}

	id, cat, err := f.loadCatalog(name)
	if err != nil {
		return nil, requestError(op, name, "", err)
	}

	current := uint64(0)
	if cat != nil {
		current = cat.Version
	}
	if version == 0 {
		version = max(current, 1)
	}
	if version < current {
		return nil, requestError(op, name, "", fmt.Errorf("%w: requested %d, have %d", ErrVersion, version, current))
	}

	if version > current {
		if n := len(f.conns[name]); n > 0 {
			return nil, requestError(op, name, "", fmt.Errorf("%w: %d connection(s) open", ErrBlocked, n))
		}
		id, cat, err = f.upgrade(name, id, cat, current, version, upgrade)
		if err != nil {
			return nil, requestError(op, name, "", err)
		}
	}

	db := newDatabase(f, name, id, cat, f.writer(name))
	if f.conns[name] == nil {
		f.conns[name] = make(map[*Database]struct{})
	}
	f.conns[name][db] = struct{}{}

	f.logger.Debug("opened database", "name", name, "version", cat.Version, "connection", db.ID())
	return db, nil
}

// loadCatalog returns the ID and catalog of a database, or a nil catalog
// when it doesn't exist.
func (f *Factory) loadCatalog(name string) (core.ID, *storage.Catalog, error) {
	var (
		id  core.ID
		cat *storage.Catalog
	)
	err := storage.WithTx(f.backend, false, func(tx storage.Txn) error {
		var err error
		id, cat, err = readCatalog(tx, name)
		return err
	})
	if err != nil {
		return 0, nil, storageError(err)
	}
	return id, cat, nil
}

func readCatalog(tx storage.Txn, name string) (core.ID, *storage.Catalog, error) {
	raw, err := tx.Get(makeDirectoryKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	idv, err := storage.UnmarshalUint64(raw)
	if err != nil {
		return 0, nil, err
	}
	id := core.ID(idv)
	data, err := tx.Get(makeMetaKey(makeDatabasePrefix(id)))
	if err != nil {
		return 0, nil, err
	}
	cat, err := storage.UnmarshalCatalog(data)
	if err != nil {
		return 0, nil, err
	}
	return id, cat, nil
}

// upgrade runs the version-change transaction and returns the committed
// catalog.
func (f *Factory) upgrade(name string, id core.ID, cat *storage.Catalog, oldVersion, newVersion uint64, hook UpgradeFunc) (core.ID, *storage.Catalog, error) {
	if cat == nil {
		id = core.IDFromContent(name)
		// Clear anything an interrupted delete left behind.
		if _, err := purgePrefix(f.backend, makeDatabasePrefix(id)); err != nil {
			return 0, nil, storageError(err)
		}
	}

	stx, err := f.backend.Begin(true)
	if err != nil {
		return 0, nil, storageError(err)
	}
	defer stx.Discard()

	var working *storage.Catalog
	if cat == nil {
		working = &storage.Catalog{Name: name}
		if err := stx.Set(makeDirectoryKey(name), storage.MarshalUint64(uint64(id))); err != nil {
			return 0, nil, storageError(err)
		}
	} else {
		working = cat.Clone()
	}
	working.Version = newVersion

	w := f.writer(name)
	w.Lock()
	defer w.Unlock()

	db := newDatabase(f, name, id, working, w)
	tx := newTransaction(db, stx, ModeVersionChange, working, nil)
	vc := &VersionChange{tx: tx, oldVersion: oldVersion, newVersion: newVersion}

	f.logger.Info("upgrading database", "name", name, "from", oldVersion, "to", newVersion)

	if hook != nil {
		if err := hook(vc); err != nil {
			tx.finish(stateAborted)
			f.logger.Warn("upgrade aborted", "name", name, "error", err)
			return 0, nil, fmt.Errorf("%w: upgrade to version %d: %w", ErrAbort, newVersion, err)
		}
	}
	if !tx.active() {
		return 0, nil, fmt.Errorf("%w: upgrade transaction finished early", ErrAbort)
	}
	tx.closeCursors()

	if err := stx.Set(makeMetaKey(db.prefix), storage.MarshalCatalog(working)); err != nil {
		return 0, nil, storageError(err)
	}
	if err := stx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrAbort, storageError(err))
	}
	tx.state = stateCommitted
	return id, working, nil
}

// DeleteDatabase deletes the named database and all its data.
// Deleting a database that doesn't exist succeeds.
func (f *Factory) DeleteDatabase(ctx context.Context, name string) error {
	return f.deleteDatabase(ctx, name, nil)
}

// deleteDatabase deletes name. own, when set, is a connection to name that
// does not count as a blocker; it is closed only once nothing else blocks.
func (f *Factory) deleteDatabase(ctx context.Context, name string, own *Database) error {
	const op = "deleteDatabase"
	if err := ctx.Err(); err != nil {
		return requestError(op, name, "", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return requestError(op, name, "", fmt.Errorf("%w: factory is closed", ErrInvalidState))
	}
	n := len(f.conns[name])
	if _, ok := f.conns[name][own]; ok && own != nil {
		n--
	}
	if n > 0 {
		return requestError(op, name, "", fmt.Errorf("%w: %d connection(s) open", ErrBlocked, n))
	}
	if own != nil && own.markClosed() {
		f.forget(own)
		f.logger.Debug("closed database", "name", name, "connection", own.ID())
	}

	var prefix []byte
	err := storage.WithTx(f.backend, true, func(tx storage.Txn) error {
		raw, err := tx.Get(makeDirectoryKey(name))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := storage.UnmarshalUint64(raw)
		if err != nil {
			return err
		}
		prefix = makeDatabasePrefix(core.ID(id))
		if err := tx.Delete(makeDirectoryKey(name)); err != nil {
			return err
		}
		return tx.Delete(makeMetaKey(prefix))
	})
	if err != nil {
		return requestError(op, name, "", storageError(err))
	}
	if prefix == nil {
		f.logger.Debug("deleted missing database", "name", name)
		return nil
	}

	// The database is unreachable once its directory entry is gone; the
	// remaining keys are purged in bounded transactions.
	n, err := purgePrefix(f.backend, prefix)
	if err != nil {
		return requestError(op, name, "", storageError(err))
	}
	f.logger.Info("deleted database", "name", name, "keys", n)
	return nil
}

// purgePrefix deletes every key starting with prefix.
func purgePrefix(backend storage.Backend, prefix []byte) (int, error) {
	total := 0
	for {
		var batch [][]byte
		err := storage.WithTx(backend, true, func(tx storage.Txn) error {
			it := tx.NewIterator(prefix, false)
			for it.Rewind(); it.Valid() && len(batch) < purgeBatchSize; it.Next() {
				batch = append(batch, it.Key())
			}
			it.Close()
			for _, k := range batch {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += len(batch)
		if len(batch) < purgeBatchSize {
			return total, nil
		}
	}
}

// Databases lists the stored databases in name order.
func (f *Factory) Databases(ctx context.Context) ([]DatabaseInfo, error) {
	const op = "databases"
	if err := ctx.Err(); err != nil {
		return nil, requestError(op, "", "", err)
	}

	var infos []DatabaseInfo
	err := storage.WithTx(f.backend, false, func(tx storage.Txn) error {
		var names []string
		it := tx.NewIterator([]byte(directoryPrefix), false)
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Key()[len(directoryPrefix):]))
		}
		it.Close()

		for _, name := range names {
			_, cat, err := readCatalog(tx, name)
			if err != nil {
				return err
			}
			if cat != nil {
				infos = append(infos, DatabaseInfo{Name: name, Version: cat.Version})
			}
		}
		return nil
	})
	if err != nil {
		return nil, requestError(op, "", "", storageError(err))
	}
	return infos, nil
}

// Close closes every open connection and the backend.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var dbs []*Database
	for _, set := range f.conns {
		for db := range set {
			dbs = append(dbs, db)
		}
	}
	f.conns = make(map[string]map[*Database]struct{})
	f.mu.Unlock()

	for _, db := range dbs {
		db.markClosed()
	}
	return f.backend.Close()
}

// writer returns the lock that serializes read-write transactions on the
// named database. f.mu must be held.
func (f *Factory) writer(name string) *sync.Mutex {
	w, ok := f.writers[name]
	if !ok {
		w = new(sync.Mutex)
		f.writers[name] = w
	}
	return w
}

// release forgets a closed connection.
func (f *Factory) release(db *Database) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forget(db)
}

// forget requires f.mu to be held.
func (f *Factory) forget(db *Database) {
	if set, ok := f.conns[db.name]; ok {
		delete(set, db)
		if len(set) == 0 {
			delete(f.conns, db.name)
		}
	}
}
