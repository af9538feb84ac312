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

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dolmen-go/contextio"
	json "github.com/goccy/go-json"
	"github.com/poiesic/basicdb"
	"github.com/poiesic/basicdb/config"
	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/engine"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

// setupLogger loads the config file and installs the default logger.
func setupLogger(c *cli.Context) error {
	file, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, file)
	if err := file.Validate(); err != nil {
		return err
	}

	logger, err := file.NewLogger(c.App.ErrWriter)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if logger.Enabled(c.Context, slog.LevelDebug) {
		file.Database.Debug = true
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = file
	return nil
}

// applyFlags overrides config file values with flags given on the command
// line.
func applyFlags(c *cli.Context, file *config.File) {
	if c.IsSet("log-level") {
		file.LogLevel = c.String("log-level")
	}
	if c.IsSet("path") {
		file.Path = c.String("path")
	}
	if c.IsSet("engine") {
		file.Engine = c.String("engine")
	}
	if c.IsSet("db") {
		file.Database.DBName = c.String("db")
	}
	if c.IsSet("db-version") {
		file.Database.DBVersion = c.Uint64("db-version")
	}
	if c.IsSet("store") {
		if file.Database.Schema.IsZero() {
			file.Database.Schema = core.DefaultSchema()
		}
		file.Database.Schema.ObjectStoreName = c.String("store")
	}
}

func loadedConfig(c *cli.Context) *config.File {
	if file, ok := c.App.Metadata[configKey].(*config.File); ok {
		return file
	}
	return config.Defaults()
}

// session holds the storage and adapter of one command.
type session struct {
	file    *config.File
	factory *engine.Factory
	adapter *basicdb.Adapter
}

// openSession opens the configured storage. With openDb set it also opens
// the database, creating or upgrading it as needed.
func openSession(c *cli.Context, openDb bool) (*session, error) {
	file := loadedConfig(c)
	backend, err := file.OpenBackend()
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	factory := engine.NewFactory(backend, engine.WithLogger(slog.Default()))

	adapter, err := basicdb.New(factory,
		basicdb.WithConfig(file.Database),
		basicdb.WithLogger(slog.Default()),
	)
	if err != nil {
		factory.Close()
		return nil, err
	}

	s := &session{file: file, factory: factory, adapter: adapter}
	if openDb {
		if _, err := adapter.OpenDb(c.Context, nil); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) Close() error {
	if err := s.adapter.Close(); err != nil {
		slog.Error("error closing adapter", "err", err)
	}
	return s.factory.Close()
}

type storeInfo struct {
	Name          string   `json:"name"`
	KeyPath       string   `json:"keyPath,omitempty"`
	AutoIncrement bool     `json:"autoIncrement"`
	Indexes       []string `json:"indexes"`
	Count         int      `json:"count"`
}

type info struct {
	Engine    string                `json:"engine"`
	Path      string                `json:"path"`
	Databases []engine.DatabaseInfo `json:"databases"`
	Database  string                `json:"database"`
	Version   uint64                `json:"version,omitempty"`
	Store     *storeInfo            `json:"store,omitempty"`
}

func infoCommand(c *cli.Context) error {
	s, err := openSession(c, false)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.adapter.Config()
	dbs, err := s.factory.Databases(c.Context)
	if err != nil {
		return err
	}
	out := info{
		Engine:    s.file.Engine,
		Path:      config.ExpandHome(s.file.Path),
		Databases: dbs,
		Database:  cfg.DBName,
	}

	exists := false
	for _, d := range dbs {
		exists = exists || d.Name == cfg.DBName
	}
	if exists {
		db, err := s.adapter.OpenDb(c.Context, nil)
		if err != nil {
			return err
		}
		out.Version = db.Version()

		store, err := s.adapter.GetObjectStore("", engine.ReadOnly, nil)
		if err != nil {
			return err
		}
		defer store.Transaction().Abort()
		n, err := store.Count(c.Context, nil)
		if err != nil {
			return err
		}
		out.Store = &storeInfo{
			Name:          store.Name(),
			KeyPath:       store.KeyPath().String(),
			AutoIncrement: store.AutoIncrement(),
			Indexes:       store.IndexNames(),
			Count:         n,
		}
	}
	return printJSON(c.App.Writer, out)
}

func addCommand(c *cli.Context) error {
	return writeCommand(c, false)
}

func putCommand(c *cli.Context) error {
	return writeCommand(c, true)
}

func writeCommand(c *cli.Context, overwrite bool) error {
	record, err := readRecord(c.Args().First(), c.App.Reader)
	if err != nil {
		return err
	}
	var opts []basicdb.CallOption
	if c.IsSet("key") {
		opts = append(opts, basicdb.UsingKey(parseKey(c.String("key"))))
	}

	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var stored core.Record
	if overwrite {
		stored, err = s.adapter.PutRecord(c.Context, record, opts...)
	} else {
		stored, err = s.adapter.AddRecord(c.Context, record, opts...)
	}
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, stored)
}

func getCommand(c *cli.Context) error {
	key, err := requireArgs(c, 1)
	if err != nil {
		return err
	}
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.adapter.GetRecord(c.Context, parseKey(key[0]))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, rec)
}

func getByCommand(c *cli.Context) error {
	args, err := requireArgs(c, 2)
	if err != nil {
		return err
	}
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.adapter.GetRecordBy(c.Context, args[0], parseKey(args[1]))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, rec)
}

func listCommand(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.adapter.GetAllRecords(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, records)
}

func countCommand(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.adapter.CountRecords(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, n)
}

func deleteCommand(c *cli.Context) error {
	key, err := requireArgs(c, 1)
	if err != nil {
		return err
	}
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	deleted, err := s.adapter.DeleteRecord(c.Context, parseKey(key[0]))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, deleted)
}

func deleteByCommand(c *cli.Context) error {
	args, err := requireArgs(c, 2)
	if err != nil {
		return err
	}
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	deleted, err := s.adapter.DeleteRecordBy(c.Context, args[0], parseKey(args[1]))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, deleted)
}

func clearCommand(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := s.adapter.ClearObjectStore(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, ok)
}

func dropCommand(c *cli.Context) error {
	s, err := openSession(c, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := s.adapter.DeleteDb(c.Context, "")
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, ok)
}

func importCommand(c *cli.Context) error {
	ctx := c.Context
	in, closeIn, err := openInput(c.Args().First(), c.App.Reader)
	if err != nil {
		return err
	}
	defer closeIn()

	records, err := readLines(contextio.NewReader(ctx, in))
	if err != nil {
		return err
	}

	s, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer s.Close()

	workers, err := s.adapter.Async(c.Int("workers"))
	if err != nil {
		return err
	}
	defer workers.Release()

	tracker := NewProgressTracker(c.App.ErrWriter, len(records), c.Int("report-interval"))
	tracker.Start()

	futures := make([]*basicdb.Future[core.Record], 0, len(records))
	for _, rec := range records {
		if c.Bool("put") {
			futures = append(futures, workers.PutRecord(ctx, rec.value))
		} else {
			futures = append(futures, workers.AddRecord(ctx, rec.value))
		}
	}

	failed, firstFailed := 0, 0
	for i, f := range futures {
		if _, err := f.Await(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failed++
			if firstFailed == 0 {
				firstFailed = records[i].line
			}
			slog.Warn("import failed", "line", records[i].line, "err", err)
		}
		tracker.Increment(1)
	}
	tracker.Finish()

	slog.Info("import complete", "records", len(records), "failed", failed, "elapsed", tracker.Elapsed())
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed to import, first at line %d", failed, len(records), firstFailed)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	ctx := c.Context
	out, closeOut, err := openOutput(c.Args().First(), c.App.Writer)
	if err != nil {
		return err
	}

	s, err := openSession(c, true)
	if err != nil {
		closeOut()
		return err
	}
	defer s.Close()

	w := bufio.NewWriter(contextio.NewWriter(ctx, out))
	n := 0
	err = s.adapter.ForEachRecord(ctx, func(rec core.Record) error {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
		n++
		return nil
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	slog.Info("export complete", "records", n)
	return nil
}

func requireArgs(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("%s needs %d argument(s): %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return c.Args().Slice(), nil
}

// parseKey reads a key given on the command line: valid JSON is decoded,
// anything else is taken as a string.
func parseKey(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// readRecord decodes one JSON object from arg, or from stdin when arg is
// empty or "-".
func readRecord(arg string, stdin io.Reader) (map[string]any, error) {
	data := []byte(arg)
	if arg == "" || arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, err
		}
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return rec, nil
}

// inputLine is a record read from a JSON lines file and the line it came
// from.
type inputLine struct {
	line  int
	value map[string]any
}

// readLines decodes one JSON object per non-empty line.
func readLines(r io.Reader) ([]inputLine, error) {
	var records []inputLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("line %d: record must be a JSON object", line)
		}
		records = append(records, inputLine{line: line, value: rec})
	}
	return records, scanner.Err()
}

func openInput(arg string, stdin io.Reader) (io.Reader, func() error, error) {
	if arg == "" || arg == "-" {
		return stdin, func() error { return nil }, nil
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openOutput(arg string, stdout io.Writer) (io.Writer, func() error, error) {
	if arg == "" || arg == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(arg)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
