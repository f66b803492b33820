// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/client"
	"github.com/bureau-foundation/concord/cmd/concord/cli"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

func mirrorCommand() *cli.Command {
	var (
		flags     cli.ConnectionFlags
		directory string
		history   int
		tick      time.Duration
	)
	return &cli.Command{
		Name:    "mirror",
		Summary: "Join a session and mirror its packages into a directory",
		Description: "Join a hosted session, write every package revision the session holds\n" +
			"into a local directory, and keep it current until interrupted.\n" +
			"Activities are printed as they arrive.",
		Usage: "concord mirror <name|id> [flags]",
		Examples: []cli.Example{
			{Description: "Mirror a session into ./harbor", Command: "concord mirror harbor-review -d ./harbor"},
			{Description: "Show the last 20 activities after the initial sync", Command: "concord mirror harbor-review --history 20"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mirror", pflag.ContinueOnError)
			flags.Register(flagSet)
			flagSet.StringVarP(&directory, "directory", "d", "", "content root to mirror into (default: ./<session name>)")
			flagSet.IntVar(&history, "history", 10, "activities to print once synchronized")
			flagSet.DurationVar(&tick, "tick", 50*time.Millisecond, "workspace tick interval")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord mirror <name|id>")
			}
			if tick <= 0 {
				return fmt.Errorf("--tick must be positive")
			}
			return runMirror(&flags, args[0], directory, history, tick)
		},
	}
}

func runMirror(flags *cli.ConnectionFlags, reference, directory string, history int, tick time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger(flags.Verbose)
	conn, cfg, err := cli.Dial(ctx, flags, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	admin := &adminSession{ctx: ctx, stop: stop, conn: conn, admin: client.NewAdmin(conn, flags.Identity())}
	info, err := admin.resolveSession(reference)
	if err != nil {
		return err
	}
	if directory == "" {
		directory = info.SessionName
	}
	host := client.NewDirectoryHost(directory)
	output := cli.Stdout()

	// The workspace has to exist before the join resolves: its handlers
	// are registered on the session router in the same inbox turn.
	var workspace *client.Workspace
	var openErr error
	joined := conn.JoinSession(info.SessionID)
	joined.Then(func(session *transport.ClientSession, err error) {
		if err != nil {
			return
		}
		workspace, openErr = client.OpenWorkspace(client.WorkspaceConfig{
			Directory:                     filepath.Join(cfg.Client.WorkingDir, info.SessionID.String()),
			Session:                       session,
			Host:                          host,
			Client:                        conn.Info(),
			SnapshotTransactionsPerSecond: cfg.Client.SnapshotTransactionsPerSecond,
			Filter: client.ClassFilter{
				Include: cfg.Client.IncludeObjectClasses,
				Exclude: cfg.Client.ExcludeObjectClasses,
			},
			Logger: logger,
		})
		if openErr != nil {
			session.Leave()
		}
	})
	session, err := cli.Await(ctx, conn, joined)
	if err != nil {
		return fmt.Errorf("joining %q: %w", info.SessionName, err)
	}
	if openErr != nil {
		return fmt.Errorf("opening workspace: %w", openErr)
	}
	defer workspace.Close()
	defer session.Leave()

	output.Line("joined %q, mirroring into %s", info.SessionName, directory)
	workspace.OnWorkspaceSynchronized(func() {
		for _, event := range workspace.GetLastActivities(history) {
			printActivity(output, event.Index, event.Activity)
		}
		output.Success("synchronized: %d packages, %d activities", len(workspace.PackageNames()), workspace.ActivityCount())
	})
	workspace.OnActivityAdded(func(index uint64, activity schema.Activity) {
		if workspace.IsSynced() {
			printActivity(output, index, activity)
		}
	})

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	inbox := conn.Inbox()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			inbox.Pump()
			return fmt.Errorf("disconnected from %s", conn.ServerName())
		case <-inbox.Ready():
			inbox.Pump()
		case <-ticker.C:
			workspace.Tick()
		}
	}
}

func printActivity(output *cli.Output, index uint64, activity schema.Activity) {
	output.Line("%6d  %s  %s", index, activity.Timestamp.Local().Format(time.TimeOnly), activity.Summary())
}
