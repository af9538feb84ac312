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

package basicdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/engine"
	"github.com/poiesic/basicdb/metrics"
	"github.com/poiesic/basicdb/storage/badger"
)

// Adapter issues storage requests for one configured database and store.
// It tracks the handle returned by the last successful OpenDb; calls that
// are not given an explicit handle use it.
type Adapter struct {
	factory     *engine.Factory
	ownsFactory bool
	cfg         Config
	baseLogger  *slog.Logger
	logger      *slog.Logger
	metrics     *metrics.Collector

	mu     sync.Mutex
	db     *engine.Database
	closed bool
}

// New creates an adapter over factory. The factory stays owned by the
// caller.
func New(factory *engine.Factory, opts ...Option) (*Adapter, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	a := &Adapter{
		factory:    factory,
		cfg:        DefaultConfig(),
		baseLogger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	a.cfg = a.cfg.withDefaults()
	if err := core.ValidateSchema(a.cfg.Schema); err != nil {
		return nil, err
	}

	a.logger = slog.New(slog.DiscardHandler)
	if a.cfg.Debug {
		a.logger = a.baseLogger.With("component", "basicdb")
	}
	return a, nil
}

// Open creates an adapter over a badger database stored in path. Close
// releases the storage as well.
func Open(path string, opts ...Option) (*Adapter, error) {
	backend, err := badger.OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	factory := engine.NewFactory(backend)
	a, err := New(factory, opts...)
	if err != nil {
		factory.Close()
		return nil, err
	}
	a.ownsFactory = true
	return a, nil
}

// Config returns the adapter configuration with defaults applied.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Factory returns the engine factory the adapter issues requests to.
func (a *Adapter) Factory() *engine.Factory {
	return a.factory
}

// Handle returns the tracked database handle, or nil before the first
// successful OpenDb. The handle may have been closed.
func (a *Adapter) Handle() *engine.Database {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db
}

// OpenDb opens the database, creating or upgrading it when its stored
// version is lower than the requested one. During an upgrade the
// configured store and every configured index that does not exist yet are
// created. Fields left unset in cfg fall back to the adapter
// configuration; cfg may be nil. The returned handle becomes the tracked
// handle.
func (a *Adapter) OpenDb(ctx context.Context, cfg *Config) (db *engine.Database, err error) {
	const op = "openDb"
	defer a.metrics.Observe(op, time.Now(), &err)

	c := a.merge(cfg)
	a.logger.Debug("openDb", "name", c.DBName, "version", c.DBVersion)
	if err := core.ValidateSchema(c.Schema); err != nil {
		return nil, err
	}
	if err := a.checkOpen(); err != nil {
		return nil, err
	}

	db, err = a.factory.Open(ctx, c.DBName, c.DBVersion, func(vc *engine.VersionChange) error {
		return a.upgrade(ctx, vc, c.Schema)
	})
	if err != nil {
		a.logger.Error("openDb failed", "name", c.DBName, "err", err)
		return nil, err
	}
	a.metrics.ConnectionOpened()

	a.mu.Lock()
	a.db = db
	a.mu.Unlock()

	a.logger.Debug("database opened", "name", c.DBName, "version", db.Version())
	return db, nil
}

func (a *Adapter) merge(cfg *Config) Config {
	if cfg == nil {
		return a.cfg
	}
	c := *cfg
	if c.DBName == "" {
		c.DBName = a.cfg.DBName
	}
	if c.DBVersion == 0 {
		c.DBVersion = a.cfg.DBVersion
	}
	if c.Schema.IsZero() {
		c.Schema = a.cfg.Schema
	}
	return c.withDefaults()
}

func (a *Adapter) upgrade(ctx context.Context, vc *engine.VersionChange, schema core.Schema) error {
	a.logger.Debug("upgrade needed", "from", vc.OldVersion(), "to", vc.NewVersion())

	name := schema.StoreName()
	store, err := vc.ObjectStore(name)
	if errors.Is(err, engine.ErrNotFound) {
		store, err = vc.CreateObjectStore(name, schema.CreateObjectStoreOptions)
	}
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, n := range store.IndexNames() {
		existing[n] = true
	}
	for _, ix := range schema.Indexes {
		if existing[ix.Name] {
			continue
		}
		a.logger.Debug("creating index", "store", name, "index", ix.Name, "keyPath", ix.KeyPath.String())
		if _, err := store.CreateIndex(ctx, ix.Name, ix.KeyPath, ix.Options()); err != nil {
			return err
		}
	}
	return nil
}

// CloseDb closes db, or the tracked handle when db is nil. Closing is best
// effort: failures are logged and reported as false, never returned. The
// tracked handle stays in place after it is closed.
func (a *Adapter) CloseDb(db *engine.Database) bool {
	const op = "closeDb"
	start := time.Now()
	if db == nil {
		db = a.Handle()
	}
	if db == nil {
		a.logger.Error("closeDb failed", "err", ErrNoDatabase)
		a.metrics.RecordOperation(op, time.Since(start), ErrNoDatabase)
		return false
	}

	wasOpen := !db.IsClosed()
	err := db.Close()
	a.metrics.RecordOperation(op, time.Since(start), err)
	if err != nil {
		a.logger.Error("closeDb failed", "name", db.Name(), "err", err)
		return false
	}
	if wasOpen {
		a.metrics.ConnectionClosed()
	}
	a.logger.Debug("database closed", "name", db.Name())
	return true
}

// DeleteDb deletes the named database, or the configured one when name is
// empty. Deleting a database that does not exist succeeds. The tracked
// handle is closed when it belongs to that database; any other open
// connection makes the deletion fail with engine.ErrBlocked and leaves the
// tracked handle open.
func (a *Adapter) DeleteDb(ctx context.Context, name string) (ok bool, err error) {
	const op = "deleteDb"
	defer a.metrics.Observe(op, time.Now(), &err)

	if name == "" {
		name = a.cfg.DBName
	}
	a.logger.Debug("deleteDb", "name", name)
	if err := a.checkOpen(); err != nil {
		return false, err
	}

	if db := a.Handle(); db != nil && db.Name() == name && !db.IsClosed() {
		err = db.CloseAndDelete(ctx)
		if db.IsClosed() {
			a.metrics.ConnectionClosed()
		}
	} else {
		err = a.factory.DeleteDatabase(ctx, name)
	}
	if err != nil {
		a.logger.Error("deleteDb failed", "name", name, "err", err)
		return false, err
	}
	a.logger.Debug("database deleted", "name", name)
	return true, nil
}

// GetObjectStore opens a transaction in mode on db, or on the tracked
// handle when db is nil, and returns the named store in it. An empty
// storeName selects the configured store. The caller must commit or abort
// the store's transaction; a ReadWrite store holds the database's writer
// lock until then, so other writes on that database wait for it. On the
// bbolt backend a held ReadOnly store also stalls writes that grow the file
// past bolt.InitialMmapSize until it completes.
func (a *Adapter) GetObjectStore(storeName string, mode engine.Mode, db *engine.Database) (*engine.ObjectStore, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if storeName == "" {
		storeName = a.cfg.Schema.StoreName()
	}
	if db == nil {
		db = a.Handle()
	}
	if db == nil {
		return nil, ErrNoDatabase
	}

	tx, err := db.Transaction(mode, storeName)
	if err != nil {
		return nil, err
	}
	store, err := tx.ObjectStore(storeName)
	if err != nil {
		tx.Abort()
		return nil, err
	}
	return store, nil
}

// ClearObjectStore removes every record of the store.
func (a *Adapter) ClearObjectStore(ctx context.Context, opts ...CallOption) (bool, error) {
	o := newCallOptions(opts)
	err := a.run(ctx, "clearObjectStore", engine.ReadWrite, o, func(s *engine.ObjectStore) error {
		return s.Clear(ctx)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddRecord inserts record and returns it as stored, including a generated
// key. It fails with engine.ErrConstraint when the key is taken and with
// core.ErrDataClone when the record holds values that cannot be stored.
func (a *Adapter) AddRecord(ctx context.Context, record any, opts ...CallOption) (core.Record, error) {
	return a.write(ctx, "addRecord", record, false, opts)
}

// PutRecord inserts or replaces record and returns it as stored.
func (a *Adapter) PutRecord(ctx context.Context, record any, opts ...CallOption) (core.Record, error) {
	return a.write(ctx, "putRecord", record, true, opts)
}

func (a *Adapter) write(ctx context.Context, op string, record any, overwrite bool, opts []CallOption) (core.Record, error) {
	o := newCallOptions(opts)
	var stored core.Record
	err := a.run(ctx, op, engine.ReadWrite, o, func(s *engine.ObjectStore) error {
		var (
			key core.Key
			err error
		)
		if overwrite {
			key, err = s.Put(ctx, record, o.key)
		} else {
			key, err = s.Add(ctx, record, o.key)
		}
		if err != nil {
			if errors.Is(err, core.ErrDataClone) {
				a.logger.Error(op+": record holds values that cannot be stored; use maps, slices, strings, numbers, booleans and times only", "err", err)
			}
			return err
		}
		a.logger.Debug("record written", "op", op, "key", key)
		stored, err = s.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetRecord returns the record with the given primary key, or nil when
// there is none.
func (a *Adapter) GetRecord(ctx context.Context, key any, opts ...CallOption) (core.Record, error) {
	o := newCallOptions(opts)
	var rec core.Record
	err := a.run(ctx, "getRecord", engine.ReadOnly, o, func(s *engine.ObjectStore) error {
		var err error
		rec, err = s.Get(ctx, key)
		if err == nil && rec == nil {
			a.logger.Debug("no matching record found", "key", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRecordBy returns the first record whose indexName key equals key, or
// nil when there is none.
func (a *Adapter) GetRecordBy(ctx context.Context, indexName string, key any, opts ...CallOption) (core.Record, error) {
	o := newCallOptions(opts)
	var rec core.Record
	err := a.run(ctx, "getRecordBy", engine.ReadOnly, o, func(s *engine.ObjectStore) error {
		ix, err := s.Index(indexName)
		if err != nil {
			return err
		}
		rec, err = ix.Get(ctx, key)
		if err == nil && rec == nil {
			a.logger.Debug("no matching record found", "index", indexName, "key", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAllRecords walks the store with a forward cursor and returns every
// record in primary key order. The result is never nil.
func (a *Adapter) GetAllRecords(ctx context.Context, opts ...CallOption) ([]core.Record, error) {
	records := []core.Record{}
	err := a.walk(ctx, "getAllRecords", newCallOptions(opts), func(rec core.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ForEachRecord calls fn for every record in primary key order while the
// cursor advances, instead of collecting them first. It stops at the first
// error fn returns and returns it. fn runs inside a read-only transaction:
// it must not call back into the adapter for the same store, and on the
// bbolt backend writes it issues stall once the file outgrows
// bolt.InitialMmapSize.
func (a *Adapter) ForEachRecord(ctx context.Context, fn func(core.Record) error, opts ...CallOption) error {
	return a.walk(ctx, "forEachRecord", newCallOptions(opts), fn)
}

func (a *Adapter) walk(ctx context.Context, op string, o callOptions, fn func(core.Record) error) error {
	return a.run(ctx, op, engine.ReadOnly, o, func(s *engine.ObjectStore) error {
		c, err := s.OpenCursor(ctx, nil, engine.Next)
		if err != nil {
			return err
		}
		defer c.Close()
		for c.Next() {
			if err := fn(c.Value()); err != nil {
				return err
			}
		}
		a.logger.Debug("no more entries", "op", op)
		return c.Err()
	})
}

// CountRecords returns the number of records in the store.
func (a *Adapter) CountRecords(ctx context.Context, opts ...CallOption) (int, error) {
	var n int
	err := a.run(ctx, "countRecords", engine.ReadOnly, newCallOptions(opts), func(s *engine.ObjectStore) error {
		var err error
		n, err = s.Count(ctx, nil)
		return err
	})
	return n, err
}

// DeleteRecord deletes the record with the given primary key. It reports
// false without deleting anything when there is no such record. The key
// must have the same type and value it was stored with.
func (a *Adapter) DeleteRecord(ctx context.Context, key any, opts ...CallOption) (bool, error) {
	var deleted bool
	err := a.run(ctx, "deleteRecord", engine.ReadWrite, newCallOptions(opts), func(s *engine.ObjectStore) error {
		rec, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			a.logger.Debug("no matching record found", "key", key)
			return nil
		}
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// DeleteRecordBy deletes the first record whose indexName key equals key.
// It reports false when the index has no match; otherwise it deletes by the
// matched primary key in the same transaction.
func (a *Adapter) DeleteRecordBy(ctx context.Context, indexName string, key any, opts ...CallOption) (bool, error) {
	var deleted bool
	err := a.run(ctx, "deleteRecordBy", engine.ReadWrite, newCallOptions(opts), func(s *engine.ObjectStore) error {
		ix, err := s.Index(indexName)
		if err != nil {
			return err
		}
		primary, err := ix.GetKey(ctx, key)
		if err != nil {
			return err
		}
		if primary == nil {
			a.logger.Debug("no matching record found", "index", indexName, "key", key)
			return nil
		}
		deleted, err = a.DeleteRecord(ctx, primary, Within(s))
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Close closes the tracked handle and, for adapters created by Open, the
// underlying storage. Calls made after Close fail with ErrAdapterClosed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	db := a.db
	a.mu.Unlock()

	if db != nil && !db.IsClosed() {
		if err := db.Close(); err != nil {
			a.logger.Error("error closing database", "name", db.Name(), "err", err)
		} else {
			a.metrics.ConnectionClosed()
		}
	}
	if a.ownsFactory {
		if err := a.factory.Close(); err != nil {
			a.logger.Error("error closing storage", "err", err)
			return err
		}
	}
	return nil
}

func (a *Adapter) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAdapterClosed
	}
	return nil
}

// run executes fn against the store selected by o in a transaction of the
// given mode. The transaction commits when fn succeeds and aborts
// otherwise; a store passed with Within is used as is.
func (a *Adapter) run(ctx context.Context, op string, mode engine.Mode, o callOptions, fn func(s *engine.ObjectStore) error) (err error) {
	defer a.metrics.Observe(op, time.Now(), &err)
	defer func() {
		if err != nil {
			a.logger.Error(op+" failed", "err", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if o.within != nil {
		return fn(o.within)
	}

	store, err := a.GetObjectStore(o.store, mode, o.db)
	if err != nil {
		return err
	}
	tx := store.Transaction()
	if err := fn(store); err != nil {
		if tx.Active() {
			tx.Abort()
		}
		return err
	}
	return tx.Commit()
}

func newCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
