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
	"github.com/poiesic/basicdb/core"
)

const (
	// DefaultDBName is the database opened when none is configured.
	DefaultDBName = "basic_indexed_db"
	// DefaultDBVersion is the schema version used when none is configured.
	DefaultDBVersion uint64 = 1
)

// Config is the adapter configuration. It is fixed once the adapter is
// constructed.
type Config struct {
	// DBName is the database to open. Empty selects DefaultDBName.
	DBName string `json:"dbName,omitempty" toml:"dbName" yaml:"dbName"`
	// DBVersion is the schema version to open; a higher version than the
	// stored one runs the upgrade. Zero selects DefaultDBVersion.
	DBVersion uint64 `json:"dbVersion,omitempty" toml:"dbVersion" yaml:"dbVersion"`
	// Schema describes the single object store and its indexes.
	Schema core.Schema `json:"schema" toml:"schema" yaml:"schema"`
	// Debug enables diagnostic logging.
	Debug bool `json:"debug,omitempty" toml:"debug" yaml:"debug"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DBName:    DefaultDBName,
		DBVersion: DefaultDBVersion,
		Schema:    core.DefaultSchema(),
	}
}

// withDefaults fills unset fields. An entirely unset schema becomes the
// default schema; a partial one only gets the default store name.
func (c Config) withDefaults() Config {
	if c.DBName == "" {
		c.DBName = DefaultDBName
	}
	if c.DBVersion == 0 {
		c.DBVersion = DefaultDBVersion
	}
	if c.Schema.IsZero() {
		c.Schema = core.DefaultSchema()
	} else if c.Schema.ObjectStoreName == "" {
		c.Schema.ObjectStoreName = c.Schema.StoreName()
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	return core.ValidateSchema(c.withDefaults().Schema)
}
