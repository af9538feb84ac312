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

package basicdb

import (
	"log/slog"

	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/engine"
	"github.com/poiesic/basicdb/metrics"
)

// Option configures an Adapter.
type Option func(*Adapter) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) error {
		a.cfg = cfg
		return nil
	}
}

// WithDBName sets the database name.
func WithDBName(name string) Option {
	return func(a *Adapter) error {
		a.cfg.DBName = name
		return nil
	}
}

// WithDBVersion sets the schema version.
func WithDBVersion(version uint64) Option {
	return func(a *Adapter) error {
		a.cfg.DBVersion = version
		return nil
	}
}

// WithSchema sets the object store schema.
func WithSchema(schema core.Schema) Option {
	return func(a *Adapter) error {
		a.cfg.Schema = schema
		return nil
	}
}

// WithDebug enables diagnostic logging.
func WithDebug(debug bool) Option {
	return func(a *Adapter) error {
		a.cfg.Debug = debug
		return nil
	}
}

// WithLogger sets the logger used for diagnostics when debugging is on.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.baseLogger = logger
		return nil
	}
}

// WithMetrics records every call in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Adapter) error {
		a.metrics = collector
		return nil
	}
}

// CallOption selects what a single call operates on.
type CallOption func(*callOptions)

type callOptions struct {
	store  string
	db     *engine.Database
	within *engine.ObjectStore
	key    core.Key
}

// InStore runs the call against the named store instead of the configured
// one.
func InStore(name string) CallOption {
	return func(o *callOptions) {
		o.store = name
	}
}

// OnDatabase runs the call against db instead of the tracked handle.
func OnDatabase(db *engine.Database) CallOption {
	return func(o *callOptions) {
		o.db = db
	}
}

// Within runs the call against an object store the caller already holds.
// The call joins the store's transaction and does not commit it.
func Within(store *engine.ObjectStore) CallOption {
	return func(o *callOptions) {
		o.within = store
	}
}

// UsingKey supplies the out-of-line key for AddRecord and PutRecord on
// stores without a key path.
func UsingKey(key core.Key) CallOption {
	return func(o *callOptions) {
		o.key = key
	}
}
