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

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/storage"
)

// Direction is the iteration direction of a cursor.
type Direction int

const (
	// Next iterates in ascending key order.
	Next Direction = iota
	// Prev iterates in descending key order.
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Cursor iterates the records of an object store or an index within a
// range. It is only valid while its transaction is active; Commit and
// Abort close every open cursor.
//
//	c, err := store.OpenCursor(ctx, nil, engine.Next)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	for c.Next() {
//	    use(c.PrimaryKey(), c.Value())
//	}
//	return c.Err()
type Cursor struct {
	ctx      context.Context
	store    *ObjectStore
	index    *Index
	prefix   []byte
	rng      *core.KeyRange
	dir      Direction
	keysOnly bool

	it      storage.Iterator
	started bool
	done    bool
	err     error

	key, primaryKey core.Key
	encPrimary      []byte
	value           core.Record
}

func newCursor(ctx context.Context, store *ObjectStore, index *Index, prefix []byte, rng *core.KeyRange, dir Direction, keysOnly bool) *Cursor {
	c := &Cursor{
		ctx:      ctx,
		store:    store,
		index:    index,
		prefix:   prefix,
		rng:      rng,
		dir:      dir,
		keysOnly: keysOnly,
		it:       store.tx.stx.NewIterator(prefix, dir == Prev),
	}
	store.tx.cursors[c] = struct{}{}
	return c
}

// Next advances to the next matching record and reports whether there is one.
func (c *Cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.fail(err)
		return false
	}
	if !c.store.tx.active() {
		c.fail(ErrTransactionInactive)
		return false
	}

	if !c.started {
		c.started = true
		c.seek()
	} else {
		c.it.Next()
	}

	for ; c.it.Valid(); c.it.Next() {
		rest := c.it.Key()[len(c.prefix):]
		encKey, encPrimary := rest, rest
		if c.index != nil {
			_, tail, err := core.DecodeKey(rest)
			if err != nil {
				c.fail(fmt.Errorf("%w: corrupt index entry: %w", ErrUnknown, err))
				return false
			}
			encKey, encPrimary = rest[:len(rest)-len(tail)], tail
		}

		if c.dir == Next {
			if c.rng.AboveUpper(encKey) {
				break
			}
			if c.rng.BelowLower(encKey) {
				continue
			}
		} else {
			if c.rng.BelowLower(encKey) {
				break
			}
			if c.rng.AboveUpper(encKey) {
				continue
			}
		}

		if err := c.load(encKey, encPrimary); err != nil {
			c.fail(err)
			return false
		}
		return true
	}

	c.Close()
	return false
}

func (c *Cursor) seek() {
	switch {
	case c.dir == Next && c.rng.Lower() != nil:
		c.it.Seek(concat(c.prefix, c.rng.Lower()))
	case c.dir == Prev && c.rng.Upper() != nil:
		c.it.Seek(appendAfter(concat(c.prefix, c.rng.Upper())))
	default:
		c.it.Rewind()
	}
}

func (c *Cursor) load(encKey, encPrimary []byte) error {
	key, _, err := core.DecodeKey(encKey)
	if err != nil {
		return fmt.Errorf("%w: corrupt key: %w", ErrUnknown, err)
	}
	primary := key
	if c.index != nil {
		if primary, _, err = core.DecodeKey(encPrimary); err != nil {
			return fmt.Errorf("%w: corrupt key: %w", ErrUnknown, err)
		}
	}
	c.key, c.primaryKey, c.encPrimary, c.value = key, primary, encPrimary, nil

	if c.keysOnly {
		return nil
	}
	var data []byte
	if c.index != nil {
		data, err = c.store.tx.stx.Get(makeRecordKey(c.store.recordPrefix(), encPrimary))
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: index entry without record", ErrUnknown)
		}
	} else {
		data, err = c.it.Value()
	}
	if err != nil {
		return storageError(err)
	}
	if c.value, err = storage.UnmarshalRecord(data); err != nil {
		return storageError(err)
	}
	return nil
}

// Key returns the current key: the primary key for store cursors and the
// index key for index cursors.
func (c *Cursor) Key() core.Key {
	return c.key
}

// PrimaryKey returns the primary key of the current record.
func (c *Cursor) PrimaryKey() core.Key {
	return c.primaryKey
}

// Value returns the current record; nil for key cursors.
func (c *Cursor) Value() core.Record {
	return c.value
}

// Direction returns the cursor's direction.
func (c *Cursor) Direction() Direction {
	return c.dir
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() {
	c.release()
	delete(c.store.tx.cursors, c)
}

func (c *Cursor) release() {
	c.done = true
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
}

func (c *Cursor) fail(err error) {
	c.err = requestError("cursor", c.store.tx.db.name, c.store.name, err)
	c.Close()
}

func concat(a, b []byte) []byte {
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	return append(buf, b...)
}
