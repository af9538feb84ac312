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

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// VersionChange is passed to the upgrade hook of Factory.Open. It is the
// only place object stores and indexes can be created or deleted.
type VersionChange struct {
	tx         *Transaction
	oldVersion uint64
	newVersion uint64
}

// OldVersion returns the version before the upgrade; 0 for a new database.
func (vc *VersionChange) OldVersion() uint64 {
	return vc.oldVersion
}

// NewVersion returns the version being upgraded to.
func (vc *VersionChange) NewVersion() uint64 {
	return vc.newVersion
}

// Transaction returns the version-change transaction. Records written
// through it are committed together with the schema.
func (vc *VersionChange) Transaction() *Transaction {
	return vc.tx
}

// ObjectStoreNames returns the store names in sorted order.
func (vc *VersionChange) ObjectStoreNames() []string {
	return vc.tx.catalog.StoreNames()
}

// ObjectStore returns an existing store.
func (vc *VersionChange) ObjectStore(name string) (*ObjectStore, error) {
	return vc.tx.ObjectStore(name)
}

// CreateObjectStore creates a store. It fails with ErrConstraint if the
// store exists.
func (vc *VersionChange) CreateObjectStore(name string, opts core.StoreOptions) (*ObjectStore, error) {
	const op = "createObjectStore"
	tx := vc.tx
	if !tx.active() {
		return nil, requestError(op, tx.db.name, name, ErrTransactionInactive)
	}
	if err := core.ValidateStoreName(name); err != nil {
		return nil, requestError(op, tx.db.name, name, fmt.Errorf("%w: %w", ErrInvalidAccess, err))
	}
	if err := core.ValidateStoreOptions(opts); err != nil {
		return nil, requestError(op, tx.db.name, name, fmt.Errorf("%w: %w", ErrInvalidAccess, err))
	}
	if _, exists := tx.catalog.Store(name); exists {
		return nil, requestError(op, tx.db.name, name, fmt.Errorf("%w: object store %q already exists", ErrConstraint, name))
	}

	meta := storage.StoreMeta{
		ID:            tx.catalog.AllocID(),
		Name:          name,
		KeyPath:       []string(opts.KeyPath),
		AutoIncrement: opts.AutoIncrement,
	}
	tx.catalog.Stores = append(tx.catalog.Stores, meta)
	tx.db.factory.logger.Debug("created object store", "database", tx.db.name, "store", name, "keyPath", opts.KeyPath.String())
	return &ObjectStore{tx: tx, name: name, id: meta.ID}, nil
}

// DeleteObjectStore deletes a store with its records and indexes.
func (vc *VersionChange) DeleteObjectStore(name string) error {
	const op = "deleteObjectStore"
	tx := vc.tx
	if !tx.active() {
		return requestError(op, tx.db.name, name, ErrTransactionInactive)
	}
	for i, s := range tx.catalog.Stores {
		if s.Name != name {
			continue
		}
		prefixes := [][]byte{
			makeRecordPrefix(tx.db.prefix, s.ID),
			makeGeneratorKey(tx.db.prefix, s.ID),
		}
		for _, ix := range s.Indexes {
			prefixes = append(prefixes, makeIndexPrefix(tx.db.prefix, ix.ID))
		}
		for _, p := range prefixes {
			if err := deletePrefix(tx.stx, p); err != nil {
				return requestError(op, tx.db.name, name, storageError(err))
			}
		}
		tx.catalog.Stores = append(tx.catalog.Stores[:i], tx.catalog.Stores[i+1:]...)
		return nil
	}
	return requestError(op, tx.db.name, name, fmt.Errorf("%w: object store %q", ErrNotFound, name))
}
