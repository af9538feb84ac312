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

import (
	"encoding/binary"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/basicdb/core"
)

// catalogFormat is the leading version byte of an encoded catalog.
const catalogFormat byte = 1

// MarshalUint64 serializes a counter to 8 big-endian bytes.
func MarshalUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// UnmarshalUint64 deserializes a counter written by MarshalUint64.
func UnmarshalUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: counter has %d bytes", ErrTruncatedData, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// MarshalCatalog serializes a Catalog to bytes.
func MarshalCatalog(c *Catalog) []byte {
	buf := make([]byte, 1+catalogSize(c))
	buf[0] = catalogFormat
	marshalCatalog(c, buf[1:])
	return buf
}

// UnmarshalCatalog deserializes a Catalog from bytes.
func UnmarshalCatalog(data []byte) (*Catalog, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrTruncatedData)
	}
	if data[0] != catalogFormat {
		return nil, fmt.Errorf("%w: unknown catalog format %d", ErrSerializationFailed, data[0])
	}
	c, err := unmarshalCatalog(data[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return c, nil
}

// MarshalRecord serializes a record value to bytes.
func MarshalRecord(r core.Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a record value from bytes.
func UnmarshalRecord(data []byte) (core.Record, error) {
	var r core.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrSerializationFailed)
	}
	return r, nil
}

func catalogSize(c *Catalog) int {
	size := ord.String.Size(c.Name) +
		varint.Uint64.Size(c.Version) +
		varint.Uint64.Size(c.NextID) +
		varint.Uint64.Size(uint64(len(c.Stores)))
	for i := range c.Stores {
		size += storeSize(&c.Stores[i])
	}
	return size
}

func marshalCatalog(c *Catalog, bs []byte) int {
	n := ord.String.Marshal(c.Name, bs)
	n += varint.Uint64.Marshal(c.Version, bs[n:])
	n += varint.Uint64.Marshal(c.NextID, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(c.Stores)), bs[n:])
	for i := range c.Stores {
		n += marshalStore(&c.Stores[i], bs[n:])
	}
	return n
}

func unmarshalCatalog(bs []byte) (*Catalog, error) {
	c := &Catalog{}
	var (
		n, m  int
		count uint64
		err   error
	)
	if c.Name, m, err = ord.String.Unmarshal(bs); err != nil {
		return nil, err
	}
	n += m
	if c.Version, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if c.NextID, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if count, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return nil, err
	}
	n += m
	if count > uint64(len(bs)) {
		return nil, ErrTruncatedData
	}
	for range count {
		var s StoreMeta
		if m, err = unmarshalStore(bs[n:], &s); err != nil {
			return nil, err
		}
		n += m
		c.Stores = append(c.Stores, s)
	}
	return c, nil
}

func storeSize(s *StoreMeta) int {
	size := varint.Uint64.Size(s.ID) +
		ord.String.Size(s.Name) +
		pathSize(s.KeyPath) +
		ord.Bool.Size(s.AutoIncrement) +
		varint.Uint64.Size(uint64(len(s.Indexes)))
	for i := range s.Indexes {
		size += indexSize(&s.Indexes[i])
	}
	return size
}

func marshalStore(s *StoreMeta, bs []byte) int {
	n := varint.Uint64.Marshal(s.ID, bs)
	n += ord.String.Marshal(s.Name, bs[n:])
	n += marshalPath(s.KeyPath, bs[n:])
	n += ord.Bool.Marshal(s.AutoIncrement, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(s.Indexes)), bs[n:])
	for i := range s.Indexes {
		n += marshalIndex(&s.Indexes[i], bs[n:])
	}
	return n
}

func unmarshalStore(bs []byte, s *StoreMeta) (int, error) {
	var (
		n, m  int
		count uint64
		err   error
	)
	if s.ID, m, err = varint.Uint64.Unmarshal(bs); err != nil {
		return n, err
	}
	n += m
	if s.Name, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if s.KeyPath, m, err = unmarshalPath(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if s.AutoIncrement, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if count, m, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if count > uint64(len(bs)) {
		return n, ErrTruncatedData
	}
	for range count {
		var ix IndexMeta
		if m, err = unmarshalIndex(bs[n:], &ix); err != nil {
			return n, err
		}
		n += m
		s.Indexes = append(s.Indexes, ix)
	}
	return n, nil
}

func indexSize(ix *IndexMeta) int {
	return varint.Uint64.Size(ix.ID) +
		ord.String.Size(ix.Name) +
		pathSize(ix.KeyPath) +
		ord.Bool.Size(ix.Unique) +
		ord.Bool.Size(ix.MultiEntry)
}

func marshalIndex(ix *IndexMeta, bs []byte) int {
	n := varint.Uint64.Marshal(ix.ID, bs)
	n += ord.String.Marshal(ix.Name, bs[n:])
	n += marshalPath(ix.KeyPath, bs[n:])
	n += ord.Bool.Marshal(ix.Unique, bs[n:])
	n += ord.Bool.Marshal(ix.MultiEntry, bs[n:])
	return n
}

func unmarshalIndex(bs []byte, ix *IndexMeta) (int, error) {
	var (
		n, m int
		err  error
	)
	if ix.ID, m, err = varint.Uint64.Unmarshal(bs); err != nil {
		return n, err
	}
	n += m
	if ix.Name, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if ix.KeyPath, m, err = unmarshalPath(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if ix.Unique, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	if ix.MultiEntry, m, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return n, err
	}
	n += m
	return n, nil
}

func pathSize(p []string) int {
	size := varint.Uint64.Size(uint64(len(p)))
	for _, s := range p {
		size += ord.String.Size(s)
	}
	return size
}

func marshalPath(p []string, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(p)), bs)
	for _, s := range p {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalPath(bs []byte) ([]string, int, error) {
	count, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count == 0 {
		return nil, n, nil
	}
	if count > uint64(len(bs)) {
		return nil, n, ErrTruncatedData
	}
	p := make([]string, 0, count)
	for range count {
		s, m, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += m
		p = append(p, s)
	}
	return p, n, nil
}
