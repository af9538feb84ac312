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

// Package config loads basicdb command line configuration from TOML or
// YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/basicdb"
	"github.com/poiesic/basicdb/storage"
	"github.com/poiesic/basicdb/storage/badger"
	"github.com/poiesic/basicdb/storage/bolt"
	"gopkg.in/yaml.v2"
)

const (
	// EngineBadger stores data in a badger directory.
	EngineBadger = "badger"
	// EngineBolt stores data in a single bbolt file.
	EngineBolt = "bolt"
)

var (
	// ErrUnsupportedFormat is returned for config files that are neither
	// TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// File is the contents of a config file.
type File struct {
	Engine    string `toml:"engine" yaml:"engine"`
	Path      string `toml:"path" yaml:"path"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
	// Database fields left unset take the adapter defaults.
	Database basicdb.Config `toml:"database" yaml:"database"`
}

// Defaults returns a File with sane defaults.
func Defaults() *File {
	return &File{
		Engine:    EngineBadger,
		Path:      "~/.basicdb",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a TOML (.toml) or YAML (.yaml, .yml) config file on top of
// the defaults. If path is empty, only defaults are returned.
func Load(path string) (*File, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return cfg, nil
}

// Validate checks the file for values the command line cannot use.
func (f *File) Validate() error {
	switch f.Engine {
	case EngineBadger, EngineBolt:
	default:
		return fmt.Errorf("%w: engine %q must be %s or %s", ErrInvalidConfig, f.Engine, EngineBadger, EngineBolt)
	}
	if f.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if _, err := ParseLevel(f.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(f.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log format %q must be text or json", ErrInvalidConfig, f.LogFormat)
	}
	if err := f.Database.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// OpenBackend opens the configured storage engine at Path.
func (f *File) OpenBackend() (storage.Backend, error) {
	path := ExpandHome(f.Path)
	switch f.Engine {
	case EngineBadger, "":
		b, err := badger.OpenBackend(path, false)
		if err != nil {
			return nil, err
		}
		return b, nil
	case EngineBolt:
		b, err := bolt.OpenBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, f.Engine)
	}
}

// NewLogger returns a logger writing to w in the configured level and
// format.
func (f *File) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(f.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
