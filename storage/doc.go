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

// Package storage provides the storage abstraction layer for basicdb.
//
// This package defines the minimal transactional key/value interface the
// engine is written against. It allows for different embedded stores
// (BadgerDB, bbolt, in-memory BadgerDB for tests) to be used
// interchangeably.
//
// # Backends
//
// badger.OpenBackend and bolt.OpenBackend return their concrete *Backend,
// which satisfies Backend:
//
//	backend, err := badger.OpenBackend(path, false)
//	factory := engine.NewFactory(backend)
//
// Callers that pick an engine at run time hold the result as a Backend.
//
// # Architecture
//
//   - Backend: opens transactions and owns the underlying store
//   - Txn: point reads, writes, deletes and prefix iteration
//   - Iterator: ordered traversal of a key prefix, forward or reverse
//
// Keys are compared as raw bytes. Values handed to Set are copied by the
// implementation and values returned by Get and Iterator.Value are owned
// by the caller.
//
// # Usage
//
//	err := storage.WithTx(backend, true, func(tx storage.Txn) error {
//	    return tx.Set(key, value)
//	})
//
// Use in tests with in-memory storage:
//
//	backend, err := badger.NewMemoryBackend()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Serialization
//
// Database catalogs are encoded with mus-go serializers. Record values are
// encoded as JSON.
//
// # Thread Safety
//
// Backends must be safe for concurrent use. A single Txn is not.
package storage
