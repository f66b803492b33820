// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/concord/lib/config"
	"github.com/bureau-foundation/concord/lib/process"
	"github.com/bureau-foundation/concord/lib/version"
	"github.com/bureau-foundation/concord/server"
	"github.com/bureau-foundation/concord/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		logLevel    string
		showVersion bool
	)
	flags := pflag.NewFlagSet("concord-server", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to concord.yaml (default: $CONCORD_CONFIG)")
	flags.StringVar(&listen, "listen", "", "listen address, overriding server.listen_address")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("concord-server " + version.Full())
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen != "" {
		cfg.Server.ListenAddress = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	tickInterval, _ := cfg.Server.TickDuration()
	syncBudget, _ := cfg.Server.SyncBudget()

	logger := process.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := server.OpenRegistry(cfg.Server.RegistryPath, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	srv, err := server.New(server.Config{
		Name:                 cfg.Server.Name,
		WorkingDir:           cfg.Server.WorkingDir,
		Registry:             registry,
		TickInterval:         tickInterval,
		SyncBudget:           syncBudget,
		LedgerCacheBytes:     cfg.Server.LedgerCacheBytes,
		RetainPackageHistory: cfg.Server.RetainPackageHistory,
		Logger:               logger,
	})
	if err != nil {
		return err
	}

	listener, err := transport.Listen(cfg.Server.ListenNetwork, cfg.Server.ListenAddress)
	if err != nil {
		return err
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ctx, listener) }()

	saved, err := srv.SavedSessionNames(ctx)
	if err != nil {
		logger.Warn("listing saved sessions failed", "error", err)
	}
	logger.Info("concord server running",
		"name", cfg.Server.Name,
		"network", cfg.Server.ListenNetwork,
		"address", cfg.Server.ListenAddress,
		"working_dir", cfg.Server.WorkingDir,
		"saved_sessions", len(saved),
		"version", version.Info(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("tick loop failed", "error", err)
	}
	logger.Info("shutting down")

	// Close runs on this goroutine, which is the one Run pumped the
	// inbox on.
	closeErr := srv.Close()
	if err := <-serveDone; err != nil {
		logger.Error("listener failed", "error", err)
	}
	return closeErr
}
