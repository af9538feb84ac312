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

// Package basicdb is a small adapter over an embedded object-store engine.
//
// An Adapter owns one configuration (database name, version and the schema
// of a single object store) and exposes one call per storage request:
// opening, closing and deleting the database, clearing the store, and
// adding, reading and deleting records by primary key or secondary index.
// Each call runs one transaction and settles exactly once.
//
// Example usage:
//
//	a, err := basicdb.Open("/var/lib/app", basicdb.WithSchema(core.Schema{
//		ObjectStoreName:          "people",
//		CreateObjectStoreOptions: core.StoreOptions{KeyPath: core.Path("id"), AutoIncrement: true},
//		Indexes:                  []core.IndexDescriptor{{Name: "byName", KeyPath: core.Path("name")}},
//	}))
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	if _, err := a.OpenDb(ctx, nil); err != nil {
//		return err
//	}
//	rec, err := a.AddRecord(ctx, map[string]any{"name": "ada"})
//	...
//	found, err := a.GetRecordBy(ctx, "byName", "ada")
//
// Records that do not exist are reported as a nil record or false, never as
// an error.
package basicdb
