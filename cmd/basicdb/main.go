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
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "basicdb",
		Usage: "Inspect and edit a basicdb object store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML or YAML config file",
				EnvVars: []string{"BASICDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Path to the storage directory (badger) or file (bolt)",
			},
			&cli.StringFlag{
				Name:    "engine",
				Aliases: []string{"e"},
				Usage:   "Storage engine (badger, bolt)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database name",
			},
			&cli.Uint64Flag{
				Name:  "db-version",
				Usage: "Database version; opening a higher version upgrades the schema",
			},
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "Object store name",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show stored databases and the configured store",
				Action: infoCommand,
			},
			{
				Name:      "add",
				Usage:     "Add a JSON record; fails if its key exists",
				ArgsUsage: "[record|-]",
				Action:    addCommand,
				Flags:     []cli.Flag{keyFlag()},
			},
			{
				Name:      "put",
				Usage:     "Add or replace a JSON record",
				ArgsUsage: "[record|-]",
				Action:    putCommand,
				Flags:     []cli.Flag{keyFlag()},
			},
			{
				Name:      "get",
				Usage:     "Print the record with a primary key",
				ArgsUsage: "<key>",
				Action:    getCommand,
			},
			{
				Name:      "get-by",
				Usage:     "Print the first record matching an index key",
				ArgsUsage: "<index> <key>",
				Action:    getByCommand,
			},
			{
				Name:   "list",
				Usage:  "Print every record in primary key order",
				Action: listCommand,
			},
			{
				Name:   "count",
				Usage:  "Print the number of records",
				Action: countCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete the record with a primary key",
				ArgsUsage: "<key>",
				Action:    deleteCommand,
			},
			{
				Name:      "delete-by",
				Usage:     "Delete the first record matching an index key",
				ArgsUsage: "<index> <key>",
				Action:    deleteByCommand,
			},
			{
				Name:   "clear",
				Usage:  "Delete every record in the store",
				Action: clearCommand,
			},
			{
				Name:   "drop",
				Usage:  "Delete the whole database",
				Action: dropCommand,
			},
			{
				Name:      "import",
				Usage:     "Import JSON lines records",
				ArgsUsage: "[file|-]",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "put",
						Usage: "Replace records whose key exists instead of failing",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent writers",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
				},
			},
			{
				Name:      "export",
				Usage:     "Export every record as JSON lines",
				ArgsUsage: "[file|-]",
				Action:    exportCommand,
			},
		},
	}
}

func keyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "key",
		Aliases: []string{"k"},
		Usage:   "Out-of-line key for stores without a key path",
	}
}
