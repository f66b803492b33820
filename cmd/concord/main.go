// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/cmd/concord/cli"
	"github.com/bureau-foundation/concord/lib/process"
	"github.com/bureau-foundation/concord/lib/version"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func root() *cli.Command {
	var showVersion bool
	return &cli.Command{
		Name:    "concord",
		Summary: "Concord collaborative editing client",
		Description: "Concord manages sessions on a Concord server, mirrors a session's\n" +
			"packages into a local directory, and inspects session ledgers on disk.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("concord", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			sessionsCommand(),
			mirrorCommand(),
			ledgerCommand(),
		},
		Run: func(args []string) error {
			if showVersion {
				fmt.Println("concord " + version.Full())
				return nil
			}
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q\n\nRun 'concord --help' for usage.", args[0])
			}
			return fmt.Errorf("command required\n\nRun 'concord --help' for usage.")
		},
	}
}
