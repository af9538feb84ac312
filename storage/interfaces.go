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

package storage

// Backend is a transactional, ordered key/value store.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Begin starts a transaction. update selects a read-write transaction.
	// Returns ErrStorageClosed once the backend is closed.
	Begin(update bool) (Txn, error)

	// IsClosed returns true if the backend is closed.
	IsClosed() bool

	// Close closes the backend and releases resources.
	Close() error
}

// Txn is a single transaction. It is not safe for concurrent use.
type Txn interface {
	// Get returns a copy of the value stored under key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(key []byte) ([]byte, error)

	// Set stores value under key. Both slices are copied.
	// Returns ErrReadOnly in a read-only transaction.
	Set(key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// NewIterator returns an iterator over the keys starting with prefix,
	// in ascending byte order, or descending when reverse is set.
	// The iterator must be closed before the transaction ends.
	NewIterator(prefix []byte, reverse bool) Iterator

	// Commit applies the writes of a read-write transaction.
	// Committing a read-only transaction releases it.
	Commit() error

	// Discard releases the transaction without applying writes.
	// It is safe to call after Commit and more than once.
	Discard()
}

// Iterator walks a key prefix in one direction.
type Iterator interface {
	// Rewind positions the iterator on the first key of the prefix in
	// iteration order.
	Rewind()

	// Seek positions the iterator on the first key >= key when iterating
	// forward, or the last key <= key when iterating in reverse.
	Seek(key []byte)

	// Valid reports whether the iterator is positioned on a key with the
	// prefix.
	Valid() bool

	// Next advances the iterator.
	Next()

	// Key returns a copy of the current key.
	Key() []byte

	// Value returns a copy of the current value.
	Value() ([]byte, error)

	// Close releases the iterator.
	Close()
}

// WithTx executes fn within a transaction on b.
// If update is true, creates a read-write transaction that is committed
// when fn returns nil. The transaction is always discarded afterwards.
func WithTx(b Backend, update bool, fn func(tx Txn) error) error {
	tx, err := b.Begin(update)
	if err != nil {
		return err
	}
	defer tx.Discard()

	if err := fn(tx); err != nil {
		return err
	}
	if update {
		return tx.Commit()
	}
	return nil
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
