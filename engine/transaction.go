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
	"fmt"

	"github.com/poiesic/basicdb/storage"
)

// Mode is a transaction mode.
type Mode int

const (
	// ReadOnly transactions can only read.
	ReadOnly Mode = iota
	// ReadWrite transactions can read and write records.
	ReadWrite
	// ModeVersionChange transactions run the upgrade hook and may change the schema.
	ModeVersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case ModeVersionChange:
		return "versionchange"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "readonly" or "readwrite".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "readonly", "":
		return ReadOnly, nil
	case "readwrite":
		return ReadWrite, nil
	default:
		return ReadOnly, fmt.Errorf("%w: unknown mode %q", ErrInvalidAccess, s)
	}
}

type txState int

const (
	stateActive txState = iota
	stateCommitted
	stateAborted
)

// Transaction groups requests against a fixed set of object stores.
// Read-write transactions on the same database run one at a time: starting
// one waits until the previous one commits or aborts. A Transaction is not
// safe for concurrent use.
type Transaction struct {
	db      *Database
	stx     storage.Txn
	mode    Mode
	catalog *storage.Catalog
	// scope is nil for version-change transactions, which see every store.
	scope   map[string]bool
	state   txState
	cursors map[*Cursor]struct{}
	// unlock releases the database's writer lock; nil when not held.
	unlock func()
}

func newTransaction(db *Database, stx storage.Txn, mode Mode, cat *storage.Catalog, scope map[string]bool) *Transaction {
	return &Transaction{
		db:      db,
		stx:     stx,
		mode:    mode,
		catalog: cat,
		scope:   scope,
		cursors: make(map[*Cursor]struct{}),
	}
}

// Mode returns the transaction mode.
func (tx *Transaction) Mode() Mode {
	return tx.mode
}

// Database returns the connection the transaction belongs to.
func (tx *Transaction) Database() *Database {
	return tx.db
}

// ObjectStoreNames returns the names of the stores in scope.
func (tx *Transaction) ObjectStoreNames() []string {
	names := tx.catalog.StoreNames()
	if tx.scope == nil {
		return names
	}
	out := names[:0]
	for _, n := range names {
		if tx.scope[n] {
			out = append(out, n)
		}
	}
	return out
}

// ObjectStore returns the named store. It fails with ErrNotFound when the
// store is outside the transaction's scope.
func (tx *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	const op = "objectStore"
	if !tx.active() {
		return nil, requestError(op, tx.db.name, name, ErrTransactionInactive)
	}
	if tx.scope != nil && !tx.scope[name] {
		return nil, requestError(op, tx.db.name, name, fmt.Errorf("%w: object store %q is not in scope", ErrNotFound, name))
	}
	meta, ok := tx.catalog.Store(name)
	if !ok {
		return nil, requestError(op, tx.db.name, name, fmt.Errorf("%w: object store %q", ErrNotFound, name))
	}
	return &ObjectStore{tx: tx, name: name, id: meta.ID}, nil
}

// Commit applies the transaction's writes.
func (tx *Transaction) Commit() error {
	const op = "commit"
	if !tx.active() {
		return requestError(op, tx.db.name, "", ErrTransactionInactive)
	}
	if tx.mode == ModeVersionChange {
		return requestError(op, tx.db.name, "", fmt.Errorf("%w: upgrade transactions commit when the hook returns", ErrInvalidState))
	}
	tx.closeCursors()
	tx.state = stateCommitted
	defer tx.releaseWriter()
	if err := tx.stx.Commit(); err != nil {
		tx.state = stateAborted
		return requestError(op, tx.db.name, "", fmt.Errorf("%w: %w", ErrAbort, storageError(err)))
	}
	return nil
}

// Abort discards the transaction's writes.
func (tx *Transaction) Abort() error {
	if !tx.active() {
		return requestError("abort", tx.db.name, "", ErrTransactionInactive)
	}
	tx.finish(stateAborted)
	return nil
}

// Active reports whether the transaction still accepts requests.
func (tx *Transaction) Active() bool {
	return tx.active()
}

func (tx *Transaction) active() bool {
	return tx.state == stateActive
}

func (tx *Transaction) finish(state txState) {
	tx.closeCursors()
	tx.state = state
	tx.stx.Discard()
	tx.releaseWriter()
}

func (tx *Transaction) releaseWriter() {
	if tx.unlock != nil {
		tx.unlock()
		tx.unlock = nil
	}
}

func (tx *Transaction) closeCursors() {
	for c := range tx.cursors {
		c.release()
	}
	clear(tx.cursors)
}

// check validates a request against the transaction state.
func (tx *Transaction) check(write bool) error {
	if !tx.active() {
		return ErrTransactionInactive
	}
	if write && tx.mode == ReadOnly {
		return ErrReadOnly
	}
	return nil
}
