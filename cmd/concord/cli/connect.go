// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/lib/config"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// DefaultDialTimeout bounds the connection and hello exchange.
const DefaultDialTimeout = 10 * time.Second

// ConnectionFlags are the flags every server-facing command takes.
type ConnectionFlags struct {
	ConfigPath string
	Network    string
	Address    string
	UserName   string
	DeviceName string
	Timeout    time.Duration
	Verbose    bool
}

// Register adds the connection flags to flagSet.
func (f *ConnectionFlags) Register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", "", "path to concord.yaml (default: $CONCORD_CONFIG)")
	flagSet.StringVar(&f.Network, "network", "", "tcp or unix, overriding server.listen_network")
	flagSet.StringVarP(&f.Address, "server", "s", "", "server address, overriding server.listen_address")
	flagSet.StringVar(&f.UserName, "user", "", "user name to present (default: the login name)")
	flagSet.StringVar(&f.DeviceName, "device", "", "device name to present (default: the host name)")
	flagSet.DurationVar(&f.Timeout, "timeout", DefaultDialTimeout, "connection timeout")
	flagSet.BoolVarP(&f.Verbose, "verbose", "v", false, "log connection diagnostics")
}

// Identity is the ClientInfo presented to the server.
func (f *ConnectionFlags) Identity() schema.ClientInfo {
	userName := f.UserName
	if userName == "" {
		if current, err := user.Current(); err == nil {
			userName = current.Username
		}
	}
	deviceName := f.DeviceName
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}
	return schema.ClientInfo{
		DisplayName: userName,
		UserName:    userName,
		DeviceName:  deviceName,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Config resolves the configuration with the flag overrides applied.
func (f *ConnectionFlags) Config() (*config.Config, error) {
	cfg, err := config.Resolve(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if f.Network != "" {
		cfg.Server.ListenNetwork = f.Network
	}
	if f.Address != "" {
		cfg.Server.ListenAddress = f.Address
	}
	return cfg, nil
}

// Dial connects to the configured server.
func Dial(ctx context.Context, flags *ConnectionFlags, logger *slog.Logger) (*transport.Client, *config.Config, error) {
	cfg, err := flags.Config()
	if err != nil {
		return nil, nil, err
	}
	timeout := flags.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := transport.NetDialer{Network: cfg.Server.ListenNetwork, Timeout: timeout}
	client, err := transport.Dial(dialCtx, dialer, cfg.Server.ListenAddress, transport.ClientConfig{
		Info:   flags.Identity(),
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Server.ListenAddress, err)
	}
	return client, cfg, nil
}

// Await pumps client's inbox on the calling goroutine until future
// resolves, ctx ends, or the connection drops.
func Await[T any](ctx context.Context, client *transport.Client, future *transport.Future[T]) (T, error) {
	inbox := client.Inbox()
	for {
		select {
		case <-future.Done():
			return future.Result()
		case <-inbox.Ready():
			inbox.Pump()
		case <-client.Done():
			inbox.Pump()
			select {
			case <-future.Done():
				return future.Result()
			default:
				var zero T
				return zero, transport.ErrClosed
			}
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
