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
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// maxGeneratedKey is the largest key a key generator produces (2^53).
const maxGeneratedKey = 1 << 53

// ObjectStore is a handle to an object store inside a transaction.
type ObjectStore struct {
	tx   *Transaction
	name string
	id   uint64
}

// Name returns the store name.
func (s *ObjectStore) Name() string {
	return s.name
}

// Transaction returns the transaction the handle belongs to.
func (s *ObjectStore) Transaction() *Transaction {
	return s.tx
}

// KeyPath returns the store's key path; empty for out-of-line keys.
func (s *ObjectStore) KeyPath() core.KeyPath {
	meta, err := s.meta()
	if err != nil {
		return nil
	}
	return core.KeyPath(meta.KeyPath)
}

// AutoIncrement reports whether the store has a key generator.
func (s *ObjectStore) AutoIncrement() bool {
	meta, err := s.meta()
	return err == nil && meta.AutoIncrement
}

// IndexNames returns the store's index names in sorted order.
func (s *ObjectStore) IndexNames() []string {
	meta, err := s.meta()
	if err != nil {
		return nil
	}
	return meta.IndexNames()
}

// Add inserts value. key is the out-of-line key and must be nil for stores
// with a key path. Add fails with ErrConstraint if the key already exists.
// It returns the record's key.
func (s *ObjectStore) Add(ctx context.Context, value any, key core.Key) (core.Key, error) {
	return s.write(ctx, "add", value, key, false)
}

// Put inserts or replaces value. See Add.
func (s *ObjectStore) Put(ctx context.Context, value any, key core.Key) (core.Key, error) {
	return s.write(ctx, "put", value, key, true)
}

// Get returns the first record matching query, a key or *core.KeyRange.
// It returns a nil record and no error when nothing matches.
func (s *ObjectStore) Get(ctx context.Context, query any) (core.Record, error) {
	const op = "get"
	rng, err := requiredRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	c, err := s.openCursor(ctx, op, rng, Next, false)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if c.Next() {
		return c.Value(), nil
	}
	return nil, c.Err()
}

// GetKey returns the primary key of the first record matching query, or nil.
func (s *ObjectStore) GetKey(ctx context.Context, query any) (core.Key, error) {
	const op = "getKey"
	rng, err := requiredRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	c, err := s.openCursor(ctx, op, rng, Next, true)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if c.Next() {
		return c.PrimaryKey(), nil
	}
	return nil, c.Err()
}

// GetAll returns the records matching query in key order. A nil query
// matches every record; limit <= 0 means no limit.
func (s *ObjectStore) GetAll(ctx context.Context, query any, limit int) ([]core.Record, error) {
	const op = "getAll"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	c, err := s.openCursor(ctx, op, rng, Next, false)
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

// GetAllKeys returns the primary keys matching query in key order.
func (s *ObjectStore) GetAllKeys(ctx context.Context, query any, limit int) ([]core.Key, error) {
	const op = "getAllKeys"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	c, err := s.openCursor(ctx, op, rng, Next, true)
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

// Count returns the number of records matching query; nil counts all.
func (s *ObjectStore) Count(ctx context.Context, query any) (int, error) {
	const op = "count"
	rng, err := optionalRange(query)
	if err != nil {
		return 0, s.fail(op, err)
	}
	c, err := s.openCursor(ctx, op, rng, Next, true)
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

// OpenCursor opens a cursor over the records matching query.
func (s *ObjectStore) OpenCursor(ctx context.Context, query any, dir Direction) (*Cursor, error) {
	const op = "openCursor"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return s.openCursor(ctx, op, rng, dir, false)
}

// OpenKeyCursor opens a cursor that yields keys without loading records.
func (s *ObjectStore) OpenKeyCursor(ctx context.Context, query any, dir Direction) (*Cursor, error) {
	const op = "openKeyCursor"
	rng, err := optionalRange(query)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return s.openCursor(ctx, op, rng, dir, true)
}

// Delete removes the records matching query, a key or *core.KeyRange.
// Deleting keys that don't exist is not an error.
func (s *ObjectStore) Delete(ctx context.Context, query any) error {
	const op = "delete"
	rng, err := requiredRange(query)
	if err != nil {
		return s.fail(op, err)
	}
	if err := s.tx.check(true); err != nil {
		return s.fail(op, err)
	}
	meta, err := s.meta()
	if err != nil {
		return s.fail(op, err)
	}

	type victim struct {
		enc []byte
		rec core.Record
	}
	var victims []victim

	c, err := s.openCursor(ctx, op, rng, Next, len(meta.Indexes) == 0)
	if err != nil {
		return err
	}
	for c.Next() {
		victims = append(victims, victim{enc: c.encPrimary, rec: c.Value()})
	}
	c.Close()
	if err := c.Err(); err != nil {
		return err
	}

	for _, v := range victims {
		if err := s.deleteEncoded(meta, v.enc, v.rec); err != nil {
			return s.fail(op, storageError(err))
		}
	}
	return nil
}

// Clear removes every record of the store. The key generator is kept.
func (s *ObjectStore) Clear(ctx context.Context) error {
	const op = "clear"
	if err := ctx.Err(); err != nil {
		return s.fail(op, err)
	}
	if err := s.tx.check(true); err != nil {
		return s.fail(op, err)
	}
	meta, err := s.meta()
	if err != nil {
		return s.fail(op, err)
	}

	prefixes := [][]byte{s.recordPrefix()}
	for _, ix := range meta.Indexes {
		prefixes = append(prefixes, makeIndexPrefix(s.tx.db.prefix, ix.ID))
	}
	for _, p := range prefixes {
		if err := deletePrefix(s.tx.stx, p); err != nil {
			return s.fail(op, storageError(err))
		}
	}
	return nil
}

// Index returns the named index.
func (s *ObjectStore) Index(name string) (*Index, error) {
	const op = "index"
	if err := s.tx.check(false); err != nil {
		return nil, s.fail(op, err)
	}
	meta, err := s.meta()
	if err != nil {
		return nil, s.fail(op, err)
	}
	ix, ok := meta.Index(name)
	if !ok {
		return nil, s.fail(op, fmt.Errorf("%w: index %q", ErrNotFound, name))
	}
	return &Index{store: s, name: name, id: ix.ID}, nil
}

// CreateIndex creates an index and populates it from the existing records.
// It is only allowed inside the upgrade hook.
func (s *ObjectStore) CreateIndex(ctx context.Context, name string, keyPath core.KeyPath, opts core.IndexOptions) (*Index, error) {
	const op = "createIndex"
	if err := ctx.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.checkVersionChange(); err != nil {
		return nil, s.fail(op, err)
	}
	desc := core.IndexDescriptor{Name: name, KeyPath: keyPath, Unique: opts.Unique, MultiEntry: opts.MultiEntry}
	if err := core.ValidateIndexDescriptor(desc); err != nil {
		return nil, s.fail(op, fmt.Errorf("%w: %w", ErrInvalidAccess, err))
	}
	meta, err := s.meta()
	if err != nil {
		return nil, s.fail(op, err)
	}
	if _, exists := meta.Index(name); exists {
		return nil, s.fail(op, fmt.Errorf("%w: index %q already exists", ErrConstraint, name))
	}

	ix := storage.IndexMeta{
		ID:         s.tx.catalog.AllocID(),
		Name:       name,
		KeyPath:    []string(keyPath),
		Unique:     opts.Unique,
		MultiEntry: opts.MultiEntry,
	}
	if err := s.populateIndex(&ix); err != nil {
		return nil, s.fail(op, err)
	}
	meta.Indexes = append(meta.Indexes, ix)
	return &Index{store: s, name: name, id: ix.ID}, nil
}

// DeleteIndex removes an index and its entries. It is only allowed inside
// the upgrade hook.
func (s *ObjectStore) DeleteIndex(ctx context.Context, name string) error {
	const op = "deleteIndex"
	if err := ctx.Err(); err != nil {
		return s.fail(op, err)
	}
	if err := s.checkVersionChange(); err != nil {
		return s.fail(op, err)
	}
	meta, err := s.meta()
	if err != nil {
		return s.fail(op, err)
	}
	for i, ix := range meta.Indexes {
		if ix.Name != name {
			continue
		}
		if err := deletePrefix(s.tx.stx, makeIndexPrefix(s.tx.db.prefix, ix.ID)); err != nil {
			return s.fail(op, storageError(err))
		}
		meta.Indexes = append(meta.Indexes[:i], meta.Indexes[i+1:]...)
		return nil
	}
	return s.fail(op, fmt.Errorf("%w: index %q", ErrNotFound, name))
}

func (s *ObjectStore) write(ctx context.Context, op string, value any, key core.Key, overwrite bool) (core.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.tx.check(true); err != nil {
		return nil, s.fail(op, err)
	}
	meta, err := s.meta()
	if err != nil {
		return nil, s.fail(op, err)
	}

	rec, err := core.CloneRecord(value)
	if err != nil {
		return nil, s.fail(op, err)
	}

	gen := &generator{stx: s.tx.stx, key: makeGeneratorKey(s.tx.db.prefix, meta.ID)}
	keyPath := core.KeyPath(meta.KeyPath)

	if !keyPath.IsZero() {
		if key != nil {
			return nil, s.fail(op, fmt.Errorf("%w: store uses in-line keys and a key was provided", ErrData))
		}
		k, found, err := keyPath.Extract(rec)
		switch {
		case err != nil:
			return nil, s.fail(op, fmt.Errorf("%w: %w", ErrData, err))
		case found:
			key = k
		case !meta.AutoIncrement:
			return nil, s.fail(op, fmt.Errorf("%w: no key at %q", ErrData, keyPath.String()))
		}
	} else if key == nil && !meta.AutoIncrement {
		return nil, s.fail(op, fmt.Errorf("%w: store uses out-of-line keys and no key was provided", ErrData))
	}

	if key == nil {
		next, err := gen.next()
		if err != nil {
			return nil, s.fail(op, err)
		}
		key = float64(next)
		if !keyPath.IsZero() {
			if err := keyPath.Inject(rec, key); err != nil {
				return nil, s.fail(op, fmt.Errorf("%w: %w", ErrData, err))
			}
		}
	} else {
		k, err := core.NormalizeKey(key)
		if err != nil {
			return nil, s.fail(op, fmt.Errorf("%w: %w", ErrData, err))
		}
		key = k
		if f, ok := key.(float64); ok && meta.AutoIncrement {
			if err := gen.bump(f); err != nil {
				return nil, s.fail(op, err)
			}
		}
	}

	enc, err := core.EncodeKey(key)
	if err != nil {
		return nil, s.fail(op, fmt.Errorf("%w: %w", ErrData, err))
	}
	recKey := makeRecordKey(s.recordPrefix(), enc)

	var old core.Record
	data, err := s.tx.stx.Get(recKey)
	switch {
	case err == nil:
		if !overwrite {
			return nil, s.fail(op, fmt.Errorf("%w: key already exists in the object store", ErrConstraint))
		}
		if old, err = storage.UnmarshalRecord(data); err != nil {
			return nil, s.fail(op, storageError(err))
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, s.fail(op, storageError(err))
	}

	type entries struct {
		prefix   []byte
		old, new [][]byte
	}
	plan := make([]entries, 0, len(meta.Indexes))
	for i := range meta.Indexes {
		ix := &meta.Indexes[i]
		e := entries{prefix: makeIndexPrefix(s.tx.db.prefix, ix.ID), new: indexKeys(ix, rec)}
		if old != nil {
			e.old = indexKeys(ix, old)
		}
		if ix.Unique {
			for _, k := range e.new {
				conflict, err := s.uniqueConflict(e.prefix, k, enc)
				if err != nil {
					return nil, s.fail(op, storageError(err))
				}
				if conflict {
					return nil, s.fail(op, fmt.Errorf("%w: unique index %q already has this key", ErrConstraint, ix.Name))
				}
			}
		}
		plan = append(plan, e)
	}

	payload, err := storage.MarshalRecord(rec)
	if err != nil {
		return nil, s.fail(op, fmt.Errorf("%w: %w", core.ErrDataClone, err))
	}
	stx := s.tx.stx
	for _, e := range plan {
		for _, k := range e.old {
			if err := stx.Delete(makeIndexKey(e.prefix, k, enc)); err != nil {
				return nil, s.fail(op, storageError(err))
			}
		}
	}
	if err := stx.Set(recKey, payload); err != nil {
		return nil, s.fail(op, storageError(err))
	}
	for _, e := range plan {
		for _, k := range e.new {
			if err := stx.Set(makeIndexKey(e.prefix, k, enc), enc); err != nil {
				return nil, s.fail(op, storageError(err))
			}
		}
	}
	if err := gen.flush(); err != nil {
		return nil, s.fail(op, storageError(err))
	}

	return key, nil
}

// deleteEncoded removes one record and its index entries.
func (s *ObjectStore) deleteEncoded(meta *storage.StoreMeta, enc []byte, rec core.Record) error {
	for i := range meta.Indexes {
		ix := &meta.Indexes[i]
		prefix := makeIndexPrefix(s.tx.db.prefix, ix.ID)
		for _, k := range indexKeys(ix, rec) {
			if err := s.tx.stx.Delete(makeIndexKey(prefix, k, enc)); err != nil {
				return err
			}
		}
	}
	return s.tx.stx.Delete(makeRecordKey(s.recordPrefix(), enc))
}

// uniqueConflict reports whether the index holds encIdx for a record other
// than encPrimary.
func (s *ObjectStore) uniqueConflict(indexPrefix, encIdx, encPrimary []byte) (bool, error) {
	p := makeIndexKey(indexPrefix, encIdx, nil)
	it := s.tx.stx.NewIterator(p, false)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if !bytes.Equal(it.Key()[len(p):], encPrimary) {
			return true, nil
		}
	}
	return false, nil
}

// populateIndex writes entries of a new index for every existing record.
func (s *ObjectStore) populateIndex(ix *storage.IndexMeta) error {
	prefix := s.recordPrefix()
	type row struct {
		enc []byte
		rec core.Record
	}
	var rows []row

	it := s.tx.stx.NewIterator(prefix, false)
	for it.Rewind(); it.Valid(); it.Next() {
		data, err := it.Value()
		if err != nil {
			it.Close()
			return storageError(err)
		}
		rec, err := storage.UnmarshalRecord(data)
		if err != nil {
			it.Close()
			return storageError(err)
		}
		rows = append(rows, row{enc: it.Key()[len(prefix):], rec: rec})
	}
	it.Close()

	ixPrefix := makeIndexPrefix(s.tx.db.prefix, ix.ID)
	owners := make(map[string][]byte)
	for _, r := range rows {
		for _, k := range indexKeys(ix, r.rec) {
			if ix.Unique {
				if owner, taken := owners[string(k)]; taken && !bytes.Equal(owner, r.enc) {
					return fmt.Errorf("%w: existing records violate unique index %q", ErrConstraint, ix.Name)
				}
				owners[string(k)] = r.enc
			}
			if err := s.tx.stx.Set(makeIndexKey(ixPrefix, k, r.enc), r.enc); err != nil {
				return storageError(err)
			}
		}
	}
	return nil
}

func (s *ObjectStore) openCursor(ctx context.Context, op string, rng *core.KeyRange, dir Direction, keysOnly bool) (*Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.tx.check(false); err != nil {
		return nil, s.fail(op, err)
	}
	if _, err := s.meta(); err != nil {
		return nil, s.fail(op, err)
	}
	return newCursor(ctx, s, nil, s.recordPrefix(), rng, dir, keysOnly), nil
}

func (s *ObjectStore) checkVersionChange() error {
	if !s.tx.active() {
		return ErrTransactionInactive
	}
	if s.tx.mode != ModeVersionChange {
		return fmt.Errorf("%w: schema changes require an upgrade transaction", ErrInvalidState)
	}
	return nil
}

// meta returns the store's catalog entry; it fails once the store has been
// deleted.
func (s *ObjectStore) meta() (*storage.StoreMeta, error) {
	meta, ok := s.tx.catalog.Store(s.name)
	if !ok || meta.ID != s.id {
		return nil, fmt.Errorf("%w: object store %q has been deleted", ErrInvalidState, s.name)
	}
	return meta, nil
}

func (s *ObjectStore) recordPrefix() []byte {
	return makeRecordPrefix(s.tx.db.prefix, s.id)
}

func (s *ObjectStore) fail(op string, err error) error {
	return requestError(op, s.tx.db.name, s.name, err)
}

// generator reads and advances a store's key generator within a transaction.
type generator struct {
	stx    storage.Txn
	key    []byte
	loaded bool
	dirty  bool
	value  uint64
}

func (g *generator) load() error {
	if g.loaded {
		return nil
	}
	data, err := g.stx.Get(g.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		g.value = 1
	case err != nil:
		return storageError(err)
	default:
		if g.value, err = storage.UnmarshalUint64(data); err != nil {
			return storageError(err)
		}
	}
	g.loaded = true
	return nil
}

// next returns the next generated key.
func (g *generator) next() (uint64, error) {
	if err := g.load(); err != nil {
		return 0, err
	}
	if g.value > maxGeneratedKey {
		return 0, fmt.Errorf("%w: key generator exhausted", ErrConstraint)
	}
	v := g.value
	g.value++
	g.dirty = true
	return v, nil
}

// bump moves the generator past an explicit numeric key.
func (g *generator) bump(k float64) error {
	if err := g.load(); err != nil {
		return err
	}
	if k < float64(g.value) {
		return nil
	}
	next := uint64(maxGeneratedKey + 1)
	if k < maxGeneratedKey {
		next = uint64(math.Floor(k)) + 1
	}
	if next > g.value {
		g.value = next
		g.dirty = true
	}
	return nil
}

func (g *generator) flush() error {
	if !g.dirty {
		return nil
	}
	return g.stx.Set(g.key, storage.MarshalUint64(g.value))
}

// indexKeys returns the distinct encoded index keys of rec. Records whose
// value at the key path is missing or not a valid key are not indexed.
func indexKeys(ix *storage.IndexMeta, rec core.Record) [][]byte {
	path := core.KeyPath(ix.KeyPath)
	if !ix.MultiEntry {
		k, found, err := path.Extract(rec)
		if !found || err != nil {
			return nil
		}
		enc, err := core.EncodeKey(k)
		if err != nil {
			return nil
		}
		return [][]byte{enc}
	}

	v, found := path.Evaluate(rec)
	if !found {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		enc, err := core.EncodeKey(v)
		if err != nil {
			return nil
		}
		return [][]byte{enc}
	}
	var out [][]byte
	seen := make(map[string]bool, len(arr))
	for _, e := range arr {
		enc, err := core.EncodeKey(e)
		if err != nil || seen[string(enc)] {
			continue
		}
		seen[string(enc)] = true
		out = append(out, enc)
	}
	return out
}

// deletePrefix removes every key starting with prefix inside stx.
func deletePrefix(stx storage.Txn, prefix []byte) error {
	var keys [][]byte
	it := stx.NewIterator(prefix, false)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	it.Close()
	for _, k := range keys {
		if err := stx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// requiredRange converts a key or *core.KeyRange; nil is invalid.
func requiredRange(query any) (*core.KeyRange, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: a key or key range is required", ErrData)
	}
	return optionalRange(query)
}

// optionalRange converts a key or *core.KeyRange; nil matches every key.
func optionalRange(query any) (*core.KeyRange, error) {
	switch q := query.(type) {
	case nil:
		return nil, nil
	case *core.KeyRange:
		return q, nil
	case core.KeyRange:
		return &q, nil
	default:
		rng, err := core.Only(q)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrData, err)
		}
		return rng, nil
	}
}
