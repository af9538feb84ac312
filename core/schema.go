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

package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

const (
	// DefaultObjectStoreName is the store created when the schema names none.
	DefaultObjectStoreName = "basic_indexed_db_store"
	// DefaultKeyPath is the primary key path of the default schema.
	DefaultKeyPath = "id"
)

// ID identifies a database, store or index inside the storage backend.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// StoreOptions are the creation options of an object store.
type StoreOptions struct {
	KeyPath       KeyPath `json:"keyPath,omitempty" toml:"keyPath" yaml:"keyPath"`
	AutoIncrement bool    `json:"autoIncrement,omitempty" toml:"autoIncrement" yaml:"autoIncrement"`
}

// IndexOptions are the creation options of an index.
type IndexOptions struct {
	Unique     bool `json:"unique,omitempty" toml:"unique" yaml:"unique"`
	MultiEntry bool `json:"multiEntry,omitempty" toml:"multiEntry" yaml:"multiEntry"`
}

// IndexDescriptor describes one secondary index created during upgrade.
type IndexDescriptor struct {
	Name       string  `json:"name" toml:"name" yaml:"name"`
	KeyPath    KeyPath `json:"keyPath" toml:"keyPath" yaml:"keyPath"`
	Unique     bool    `json:"unique,omitempty" toml:"unique" yaml:"unique"`
	MultiEntry bool    `json:"multiEntry,omitempty" toml:"multiEntry" yaml:"multiEntry"`
}

// Options returns the index creation options of the descriptor.
func (d IndexDescriptor) Options() IndexOptions {
	return IndexOptions{Unique: d.Unique, MultiEntry: d.MultiEntry}
}

// Schema describes the single object store an adapter manages.
type Schema struct {
	ObjectStoreName          string            `json:"objectStoreName,omitempty" toml:"objectStoreName" yaml:"objectStoreName"`
	CreateObjectStoreOptions StoreOptions      `json:"createObjectStoreOptions" toml:"createObjectStoreOptions" yaml:"createObjectStoreOptions"`
	Indexes                  []IndexDescriptor `json:"indexes,omitempty" toml:"indexes" yaml:"indexes"`
}

// DefaultSchema returns the schema used when none is configured: the
// default store with an auto-incremented "id" key and no indexes.
func DefaultSchema() Schema {
	return Schema{
		ObjectStoreName: DefaultObjectStoreName,
		CreateObjectStoreOptions: StoreOptions{
			KeyPath:       Path(DefaultKeyPath),
			AutoIncrement: true,
		},
	}
}

// IsZero reports whether no part of the schema is set.
func (s Schema) IsZero() bool {
	return s.ObjectStoreName == "" &&
		s.CreateObjectStoreOptions.KeyPath.IsZero() &&
		!s.CreateObjectStoreOptions.AutoIncrement &&
		len(s.Indexes) == 0
}

// StoreName returns the configured store name or the default one.
func (s Schema) StoreName() string {
	if s.ObjectStoreName == "" {
		return DefaultObjectStoreName
	}
	return s.ObjectStoreName
}
