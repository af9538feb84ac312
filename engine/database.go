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
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// Database is an open connection to a database.
// It is safe for concurrent use; each Transaction is not.
type Database struct {
	factory *Factory
	name    string
	id      core.ID
	prefix  []byte
	conn    uuid.UUID
	writer  *sync.Mutex

	mu      sync.RWMutex
	catalog *storage.Catalog
	closed  bool
}

func newDatabase(f *Factory, name string, id core.ID, cat *storage.Catalog, writer *sync.Mutex) *Database {
	return &Database{
		factory: f,
		name:    name,
		id:      id,
		prefix:  makeDatabasePrefix(id),
		conn:    uuid.New(),
		writer:  writer,
		catalog: cat,
	}
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// ID returns the unique identifier of this connection.
func (db *Database) ID() string {
	return db.conn.String()
}

// Version returns the database version the connection was opened at.
func (db *Database) Version() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.catalog.Version
}

// ObjectStoreNames returns the store names in sorted order.
func (db *Database) ObjectStoreNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.catalog.StoreNames()
}

// IsClosed reports whether the connection is closed.
func (db *Database) IsClosed() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}

// Transaction starts a transaction over the named stores.
// mode must be ReadOnly or ReadWrite; at least one store is required and
// every store must exist.
func (db *Database) Transaction(mode Mode, stores ...string) (*Transaction, error) {
	const op = "transaction"

	db.mu.RLock()
	closed, cat := db.closed, db.catalog
	db.mu.RUnlock()

	if closed {
		return nil, requestError(op, db.name, "", fmt.Errorf("%w: connection is closed", ErrInvalidState))
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, requestError(op, db.name, "", fmt.Errorf("%w: mode %s", ErrInvalidAccess, mode))
	}
	if len(stores) == 0 {
		return nil, requestError(op, db.name, "", fmt.Errorf("%w: empty scope", ErrInvalidAccess))
	}
	scope := make(map[string]bool, len(stores))
	for _, name := range stores {
		if _, ok := cat.Store(name); !ok {
			return nil, requestError(op, db.name, name, fmt.Errorf("%w: object store %q", ErrNotFound, name))
		}
		scope[name] = true
	}

	var unlock func()
	if mode == ReadWrite {
		db.writer.Lock()
		unlock = db.writer.Unlock
	}
	stx, err := db.factory.backend.Begin(mode == ReadWrite)
	if err != nil {
		if unlock != nil {
			unlock()
		}
		return nil, requestError(op, db.name, "", storageError(err))
	}
	tx := newTransaction(db, stx, mode, cat, scope)
	tx.unlock = unlock
	return tx, nil
}

// View runs fn in a read-only transaction over stores.
func (db *Database) View(ctx context.Context, fn func(tx *Transaction) error, stores ...string) error {
	return db.run(ctx, ReadOnly, fn, stores)
}

// Update runs fn in a read-write transaction over stores. The transaction
// commits when fn returns nil and aborts otherwise.
func (db *Database) Update(ctx context.Context, fn func(tx *Transaction) error, stores ...string) error {
	return db.run(ctx, ReadWrite, fn, stores)
}

func (db *Database) run(ctx context.Context, mode Mode, fn func(tx *Transaction) error, stores []string) error {
	if err := ctx.Err(); err != nil {
		return requestError("transaction", db.name, "", err)
	}
	tx, err := db.Transaction(mode, stores...)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if tx.active() {
			_ = tx.Abort()
		}
		return err
	}
	if !tx.active() {
		return nil
	}
	return tx.Commit()
}

// Close closes the connection. Transactions already started may still
// complete. Closing twice is a no-op.
func (db *Database) Close() error {
	if !db.markClosed() {
		return nil
	}
	db.factory.release(db)
	db.factory.logger.Debug("closed database", "name", db.name, "connection", db.ID())
	return nil
}

// CloseAndDelete closes the connection and deletes its database. When
// other connections to the database are open it fails with ErrBlocked and
// leaves this one open.
func (db *Database) CloseAndDelete(ctx context.Context) error {
	return db.factory.deleteDatabase(ctx, db.name, db)
}

// markClosed flags the connection closed and reports whether it was open.
func (db *Database) markClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false
	}
	db.closed = true
	return true
}
