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

// Package engine is an embedded object-store engine modeled on the
// browser IndexedDB API.
//
// A Factory opens named, versioned databases over a storage.Backend.
// Each Database holds object stores of structured records addressed by
// ordered keys, optionally with a key path and a key generator, and
// secondary indexes maintained on every write. All reads and writes
// happen inside a Transaction scoped to a set of stores; schema changes
// happen only inside the upgrade hook passed to Factory.Open.
//
// # Usage
//
//	factory := engine.NewFactory(backend)
//	db, err := factory.Open(ctx, "library", 1, func(vc *engine.VersionChange) error {
//	    store, err := vc.CreateObjectStore("books", core.StoreOptions{KeyPath: core.Path("isbn")})
//	    if err != nil {
//	        return err
//	    }
//	    _, err = store.CreateIndex(ctx, "byAuthor", core.Path("author"), core.IndexOptions{})
//	    return err
//	})
//
//	err = db.Update(ctx, func(tx *engine.Transaction) error {
//	    store, err := tx.ObjectStore("books")
//	    if err != nil {
//	        return err
//	    }
//	    _, err = store.Add(ctx, book, nil)
//	    return err
//	}, "books")
//
// # Errors
//
// Every failed request returns a *RequestError naming the operation,
// database and store. Match the cause with errors.Is against the
// sentinels in errors.go.
//
// # Storage layout
//
// Each database lives under its own key prefix. Records are stored under
// the order-preserving encoding of their primary key, so iteration order
// is key order. See keys.go.
package engine
