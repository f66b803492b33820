// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/client"
	"github.com/bureau-foundation/concord/cmd/concord/cli"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// adminSession is an open connection with an Admin on it.
type adminSession struct {
	ctx   context.Context
	stop  context.CancelFunc
	conn  *transport.Client
	admin *client.Admin
}

func openAdmin(flags *cli.ConnectionFlags) (*adminSession, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	conn, _, err := cli.Dial(ctx, flags, cli.NewCommandLogger(flags.Verbose))
	if err != nil {
		stop()
		return nil, err
	}
	return &adminSession{ctx: ctx, stop: stop, conn: conn, admin: client.NewAdmin(conn, flags.Identity())}, nil
}

func (s *adminSession) Close() {
	s.conn.Close()
	s.stop()
}

// resolveSession accepts a session identifier or the name of a hosted
// session.
func (s *adminSession) resolveSession(reference string) (schema.SessionInfo, error) {
	if id, err := uuid.Parse(reference); err == nil {
		return cli.Await(s.ctx, s.conn, s.admin.FindSession(id))
	}
	sessions, err := cli.Await(s.ctx, s.conn, s.admin.Sessions())
	if err != nil {
		return schema.SessionInfo{}, err
	}
	for _, session := range sessions {
		if session.SessionName == reference {
			return session, nil
		}
	}
	return schema.SessionInfo{}, fmt.Errorf("no hosted session named %q", reference)
}

func connectionFlagSet(name string, flags *cli.ConnectionFlags) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		flags.Register(flagSet)
		return flagSet
	}
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Summary: "List, create, and delete sessions",
		Subcommands: []*cli.Command{
			sessionsListCommand(),
			sessionsCreateCommand(),
			sessionsDeleteCommand(),
			sessionsClientsCommand(),
			sessionsSavedCommand(),
		},
	}
}

func sessionRows(sessions []schema.SessionInfo) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			session.SessionName,
			session.SessionID.String(),
			session.OwnerUserName + "@" + session.OwnerDeviceName,
			session.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func sessionsListCommand() *cli.Command {
	var flags cli.ConnectionFlags
	return &cli.Command{
		Name:    "list",
		Summary: "List hosted sessions",
		Usage:   "concord sessions list [flags]",
		Flags:   connectionFlagSet("list", &flags),
		Run: func(args []string) error {
			session, err := openAdmin(&flags)
			if err != nil {
				return err
			}
			defer session.Close()

			sessions, err := cli.Await(session.ctx, session.conn, session.admin.Sessions())
			if err != nil {
				return err
			}
			output := cli.Stdout()
			if len(sessions) == 0 {
				output.Line("no hosted sessions")
				return nil
			}
			output.Table([]string{"NAME", "ID", "OWNER", "CREATED"}, sessionRows(sessions))
			return nil
		},
	}
}

func sessionsCreateCommand() *cli.Command {
	var flags cli.ConnectionFlags
	return &cli.Command{
		Name:    "create",
		Summary: "Host a new session or restore a saved one",
		Usage:   "concord sessions create <name> [flags]",
		Examples: []cli.Example{
			{Description: "Host a session, or restore it if it was saved", Command: "concord sessions create harbor-review"},
		},
		Flags: connectionFlagSet("create", &flags),
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord sessions create <name>")
			}
			session, err := openAdmin(&flags)
			if err != nil {
				return err
			}
			defer session.Close()

			info, err := cli.Await(session.ctx, session.conn, session.admin.CreateSession(args[0]))
			if err != nil {
				return err
			}
			output := cli.Stdout()
			output.Success("session %q is hosted", info.SessionName)
			output.Field("id", info.SessionID.String())
			output.Field("owner", info.OwnerUserName+"@"+info.OwnerDeviceName)
			return nil
		},
	}
}

func sessionsDeleteCommand() *cli.Command {
	var flags cli.ConnectionFlags
	return &cli.Command{
		Name:        "delete",
		Summary:     "Delete a session and its ledgers",
		Description: "Delete a session and its ledgers. Only the session's owner may delete it.\nA saved session that is not hosted can be deleted by identifier.",
		Usage:       "concord sessions delete <name|id> [flags]",
		Flags:       connectionFlagSet("delete", &flags),
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord sessions delete <name|id>")
			}
			session, err := openAdmin(&flags)
			if err != nil {
				return err
			}
			defer session.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				info, err := session.resolveSession(args[0])
				if err != nil {
					return err
				}
				id = info.SessionID
			}
			info, err := cli.Await(session.ctx, session.conn, session.admin.DeleteSession(id))
			if err != nil {
				return err
			}
			cli.Stdout().Success("deleted session %q", info.SessionName)
			return nil
		},
	}
}

func sessionsClientsCommand() *cli.Command {
	var flags cli.ConnectionFlags
	return &cli.Command{
		Name:    "clients",
		Summary: "List the clients joined to a session",
		Usage:   "concord sessions clients <name|id> [flags]",
		Flags:   connectionFlagSet("clients", &flags),
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: concord sessions clients <name|id>")
			}
			session, err := openAdmin(&flags)
			if err != nil {
				return err
			}
			defer session.Close()

			info, err := session.resolveSession(args[0])
			if err != nil {
				return err
			}
			clients, err := cli.Await(session.ctx, session.conn, session.admin.SessionClients(info.SessionID))
			if err != nil {
				return err
			}
			output := cli.Stdout()
			if len(clients) == 0 {
				output.Line("no clients joined to %q", info.SessionName)
				return nil
			}
			rows := make([][]string, 0, len(clients))
			for _, member := range clients {
				rows = append(rows, []string{
					member.Info.DisplayName,
					member.Info.UserName + "@" + member.Info.DeviceName,
					member.Info.Platform,
					member.EndpointID.String(),
				})
			}
			output.Table([]string{"NAME", "USER", "PLATFORM", "ENDPOINT"}, rows)
			return nil
		},
	}
}

func sessionsSavedCommand() *cli.Command {
	var flags cli.ConnectionFlags
	return &cli.Command{
		Name:    "saved",
		Summary: "List saved sessions that are not hosted",
		Usage:   "concord sessions saved [flags]",
		Flags:   connectionFlagSet("saved", &flags),
		Run: func(args []string) error {
			session, err := openAdmin(&flags)
			if err != nil {
				return err
			}
			defer session.Close()

			names, err := cli.Await(session.ctx, session.conn, session.admin.SavedSessionNames())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}
