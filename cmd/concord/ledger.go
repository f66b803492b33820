// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/cmd/concord/cli"
	"github.com/bureau-foundation/concord/lib/codec"
	"github.com/bureau-foundation/concord/lib/config"
	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/server"
)

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:    "ledger",
		Summary: "Inspect session ledgers on disk",
		Subcommands: []*cli.Command{
			ledgerInspectCommand(),
			ledgerDecodeCommand(),
		},
	}
}

// sessionLedgers is a read-only view of one session's ledgers.
type sessionLedgers struct {
	transactions *ledger.TransactionLedger
	packages     *ledger.PackageLedger
	activities   *ledger.ActivityLedger
}

func loadSessionLedgers(directory string) (*sessionLedgers, error) {
	if _, err := os.Stat(directory); err != nil {
		return nil, err
	}
	options := ledger.Options{Kind: ledger.Persistent, CacheBytes: -1}
	transactions, err := ledger.OpenTransactionLedger(directory, options)
	if err != nil {
		return nil, err
	}
	packages, err := ledger.OpenPackageLedger(directory, options)
	if err != nil {
		return nil, err
	}
	activities, err := ledger.OpenActivityLedger(directory, options)
	if err != nil {
		return nil, err
	}
	if err := transactions.Load(); err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	if err := packages.Load(); err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if err := activities.Load(); err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}
	return &sessionLedgers{transactions: transactions, packages: packages, activities: activities}, nil
}

// sessionDirectory accepts a directory or a session identifier, which
// is looked up under the server's working directory.
func sessionDirectory(reference, configPath string) (string, error) {
	id, err := uuid.Parse(reference)
	if err != nil {
		return reference, nil
	}
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return filepath.Join(cfg.Server.WorkingDir, server.SessionsDirectory, id.String()), nil
}

func ledgerInspectCommand() *cli.Command {
	var (
		configPath string
		activities int
	)
	return &cli.Command{
		Name:    "inspect",
		Summary: "Summarize a session's ledgers",
		Description: "Summarize the transaction, package, and activity ledgers of a session\n" +
			"directory. The server should be stopped or the session idle.",
		Usage: "concord ledger inspect <session-dir|session-id> [flags]",
		Examples: []cli.Example{
			{Description: "Inspect a session by identifier", Command: "concord ledger inspect 6f1c2a1e-58e4-4bd5-a0b4-7d1f19e0c3aa"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to concord.yaml, for resolving session identifiers")
			flagSet.IntVar(&activities, "activities", 10, "recent activities to list")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord ledger inspect <session-dir|session-id>")
			}
			directory, err := sessionDirectory(args[0], configPath)
			if err != nil {
				return err
			}
			ledgers, err := loadSessionLedgers(directory)
			if err != nil {
				return err
			}
			output := cli.Stdout()
			output.Field("directory", directory)
			output.Field("transactions", strconv.FormatUint(ledgers.transactions.NextTransactionIndex(), 10))
			output.Field("packages", strconv.Itoa(len(ledgers.packages.PackageNames())))
			output.Field("activities", strconv.FormatUint(ledgers.activities.ActivityCount(), 10))

			if names := ledgers.packages.PackageNames(); len(names) > 0 {
				output.Line("")
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					pkg, revision, err := ledgers.packages.FindHeadPackage(name, true)
					if err != nil {
						rows = append(rows, []string{name, strconv.FormatUint(uint64(revision), 10), "unreadable", "", ""})
						continue
					}
					rows = append(rows, []string{
						name,
						strconv.FormatUint(uint64(revision), 10),
						pkg.Info.UpdateType.String(),
						strconv.FormatUint(pkg.Info.NextTransactionIndexWhenSaved, 10),
						strconv.Itoa(len(pkg.Data)),
					})
				}
				output.Table([]string{"PACKAGE", "HEAD", "UPDATE", "SAVE POINT", "BYTES"}, rows)
			}

			if resources := ledgers.transactions.LiveResources(); len(resources) > 0 {
				output.Line("")
				rows := make([][]string, 0, len(resources))
				for _, resource := range resources {
					live := ledgers.transactions.LiveTransactions(resource)
					indices := make([]string, len(live))
					for i, index := range live {
						indices[i] = strconv.FormatUint(index, 10)
					}
					rows = append(rows, []string{resource, strings.Join(indices, ",")})
				}
				output.Table([]string{"RESOURCE", "LIVE TRANSACTIONS"}, rows)
			}

			if recent := ledgers.activities.GetLastActivities(activities); len(recent) > 0 {
				output.Line("")
				for _, event := range recent {
					printActivity(output, event.Index, event.Activity)
				}
			}
			return nil
		},
	}
}

func ledgerDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:    "decode",
		Summary: "Print one ledger entry file in CBOR diagnostic notation",
		Usage:   "concord ledger decode <entry-file>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord ledger decode <entry-file>")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tag, payload, err := ledger.DecodeEntry(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			diagnostic, err := codec.Diagnose(payload)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			output := cli.Stdout()
			output.Field("tag", tag)
			output.Field("payload", strconv.Itoa(len(payload))+" bytes")
			output.Line("%s", diagnostic)
			return nil
		},
	}
}
