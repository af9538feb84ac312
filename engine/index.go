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

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// Index is a handle to a secondary index inside a transaction.
// Entries are ordered by index key, then by primary key.
type Index struct {
	store *ObjectStore
	name  string
	id    uint64
}

// Name returns the index name.
func (ix *Index) Name() string {
	return ix.name
}

// ObjectStore returns the indexed store.
func (ix *Index) ObjectStore() *ObjectStore {
	return ix.store
}

// KeyPath returns the index key path.
func (ix *Index) KeyPath() core.KeyPath {
	meta, err := ix.meta()
	if err != nil {
		return nil
	}
	return core.KeyPath(meta.KeyPath)
}

// Unique reports whether the index rejects duplicate keys.
func (ix *Index) Unique() bool {
	meta, err := ix.meta()
	return err == nil && meta.Unique
}

// MultiEntry reports whether array values add one entry per element.
func (ix *Index) MultiEntry() bool {
	meta, err := ix.meta()
	return err == nil && meta.MultiEntry
}

// Get returns the first record, in index order, whose index key matches
// query. It returns a nil record and no error when nothing matches.
func (ix *Index) Get(ctx context.Context, query any) (core.Record, error) {
	const op = "index.get"
	rng, err := requiredRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	c, err := ix.openCursor(ctx, op, rng, Next, false)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if c.Next() {
		return c.Value(), nil
	}
	return nil, c.Err()
}

// GetKey returns the primary key of the first match, or nil.
func (ix *Index) GetKey(ctx context.Context, query any) (core.Key, error) {
	const op = "index.getKey"
	rng, err := requiredRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	c, err := ix.openCursor(ctx, op, rng, Next, true)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if c.Next() {
		return c.PrimaryKey(), nil
	}
	return nil, c.Err()
}

// GetAll returns the matching records in index order; limit <= 0 means no
// limit.
func (ix *Index) GetAll(ctx context.Context, query any, limit int) ([]core.Record, error) {
	const op = "index.getAll"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	c, err := ix.openCursor(ctx, op, rng, Next, false)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := []core.Record{}
	for (limit <= 0 || len(out) < limit) && c.Next() {
		out = append(out, c.Value())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllKeys returns the primary keys of the matches in index order.
func (ix *Index) GetAllKeys(ctx context.Context, query any, limit int) ([]core.Key, error) {
	const op = "index.getAllKeys"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	c, err := ix.openCursor(ctx, op, rng, Next, true)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := []core.Key{}
	for (limit <= 0 || len(out) < limit) && c.Next() {
		out = append(out, c.PrimaryKey())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of entries matching query; nil counts all.
func (ix *Index) Count(ctx context.Context, query any) (int, error) {
	const op = "index.count"
	rng, err := optionalRange(query)
	if err != nil {
		return 0, ix.fail(op, err)
	}
	c, err := ix.openCursor(ctx, op, rng, Next, true)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	n := 0
	for c.Next() {
		n++
	}
	return n, c.Err()
}

// OpenCursor opens a cursor over the matching entries.
func (ix *Index) OpenCursor(ctx context.Context, query any, dir Direction) (*Cursor, error) {
	const op = "index.openCursor"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	return ix.openCursor(ctx, op, rng, dir, false)
}

// OpenKeyCursor opens a cursor that yields keys without loading records.
func (ix *Index) OpenKeyCursor(ctx context.Context, query any, dir Direction) (*Cursor, error) {
	const op = "index.openKeyCursor"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, ix.fail(op, err)
	}
	return ix.openCursor(ctx, op, rng, dir, true)
}

func (ix *Index) openCursor(ctx context.Context, op string, rng *core.KeyRange, dir Direction, keysOnly bool) (*Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, ix.fail(op, err)
	}
	if err := ix.store.tx.check(false); err != nil {
		return nil, ix.fail(op, err)
	}
	if _, err := ix.meta(); err != nil {
		return nil, ix.fail(op, err)
	}
	prefix := makeIndexPrefix(ix.store.tx.db.prefix, ix.id)
	return newCursor(ctx, ix.store, ix, prefix, rng, dir, keysOnly), nil
}

func (ix *Index) meta() (*storage.IndexMeta, error) {
	store, err := ix.store.meta()
	if err != nil {
		return nil, err
	}
	meta, ok := store.Index(ix.name)
	if !ok || meta.ID != ix.id {
		return nil, fmt.Errorf("%w: index %q has been deleted", ErrInvalidState, ix.name)
	}
	return meta, nil
}

func (ix *Index) fail(op string, err error) error {
	return ix.store.fail(op, err)
}
