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

import "slices"

// Catalog is the persisted metadata of one database.
type Catalog struct {
	Name    string
	Version uint64
	// NextID allocates store and index identifiers.
	NextID uint64
	Stores []StoreMeta
}

// StoreMeta describes an object store.
type StoreMeta struct {
	ID            uint64
	Name          string
	KeyPath       []string
	AutoIncrement bool
	Indexes       []IndexMeta
}

// IndexMeta describes an index of an object store.
type IndexMeta struct {
	ID         uint64
	Name       string
	KeyPath    []string
	Unique     bool
	MultiEntry bool
}

// Store returns the store named name.
func (c *Catalog) Store(name string) (*StoreMeta, bool) {
	for i := range c.Stores {
		if c.Stores[i].Name == name {
			return &c.Stores[i], true
		}
	}
	return nil, false
}

// StoreNames returns the store names in sorted order.
func (c *Catalog) StoreNames() []string {
	names := make([]string, len(c.Stores))
	for i, s := range c.Stores {
		names[i] = s.Name
	}
	slices.Sort(names)
	return names
}

// AllocID returns a fresh store or index identifier.
func (c *Catalog) AllocID() uint64 {
	c.NextID++
	return c.NextID
}

// Clone returns a deep copy of the catalog.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{Name: c.Name, Version: c.Version, NextID: c.NextID}
	out.Stores = make([]StoreMeta, len(c.Stores))
	for i, s := range c.Stores {
		s.KeyPath = slices.Clone(s.KeyPath)
		idx := make([]IndexMeta, len(s.Indexes))
		for j, ix := range s.Indexes {
			ix.KeyPath = slices.Clone(ix.KeyPath)
			idx[j] = ix
		}
		s.Indexes = idx
		out.Stores[i] = s
	}
	return out
}

// Index returns the index named name.
func (s *StoreMeta) Index(name string) (*IndexMeta, bool) {
	for i := range s.Indexes {
		if s.Indexes[i].Name == name {
			return &s.Indexes[i], true
		}
	}
	return nil, false
}

// IndexNames returns the index names in sorted order.
func (s *StoreMeta) IndexNames() []string {
	names := make([]string, len(s.Indexes))
	for i, ix := range s.Indexes {
		names[i] = ix.Name
	}
	slices.Sort(names)
	return names
}
