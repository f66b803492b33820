// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Concord.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures concord-server.
	Server ServerConfig `yaml:"server"`

	// Client configures client workspaces.
	Client ClientConfig `yaml:"client"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server *ServerConfig `yaml:"server,omitempty"`
	Client *ClientConfig `yaml:"client,omitempty"`
}

// ServerConfig configures the session server.
type ServerConfig struct {
	// Name is reported to clients in the hello response.
	// Default: the host name
	Name string `yaml:"name"`

	// ListenNetwork is "tcp" or "unix".
	// Default: tcp
	ListenNetwork string `yaml:"listen_network"`

	// ListenAddress is the host:port or socket path to listen on.
	// Default: 127.0.0.1:6788
	ListenAddress string `yaml:"listen_address"`

	// WorkingDir holds one subdirectory per session plus the registry.
	// Default: ~/.cache/concord/server
	WorkingDir string `yaml:"working_dir"`

	// RegistryPath is the SQLite database recording hosted sessions.
	// Default: ${CONCORD_WORKING_DIR}/sessions.db
	RegistryPath string `yaml:"registry_path"`

	// TickInterval is how often the server processes its sync queues.
	// Default: 20ms
	TickInterval string `yaml:"tick_interval"`

	// SyncTimeBudget bounds the time each tick spends replaying
	// history to joining clients.
	// Default: 5ms
	SyncTimeBudget string `yaml:"sync_time_budget"`

	// LedgerCacheBytes bounds each ledger's in-memory entry cache.
	// Default: 32 MiB
	LedgerCacheBytes int64 `yaml:"ledger_cache_bytes"`

	// RetainPackageHistory keeps the bytes of superseded package
	// revisions on disk.
	// Default: false
	RetainPackageHistory bool `yaml:"retain_package_history"`
}

// ClientConfig configures client workspaces.
type ClientConfig struct {
	// WorkingDir holds the client's transient ledgers.
	// Default: ~/.cache/concord/client
	WorkingDir string `yaml:"working_dir"`

	// SnapshotTransactionsPerSecond caps how often an ongoing
	// transaction is broadcast as a snapshot. Zero disables snapshots.
	// Default: 10
	SnapshotTransactionsPerSecond float64 `yaml:"snapshot_transactions_per_second"`

	// IncludeObjectClasses, when non-empty, limits transactions to
	// objects whose class path matches one of these patterns.
	IncludeObjectClasses []string `yaml:"include_object_classes"`

	// ExcludeObjectClasses drops objects whose class path matches one
	// of these patterns. Exclusion wins over inclusion.
	ExcludeObjectClasses []string `yaml:"exclude_object_classes"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "concord")
	hostname, _ := os.Hostname()

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Name:             hostname,
			ListenNetwork:    "tcp",
			ListenAddress:    "127.0.0.1:6788",
			WorkingDir:       filepath.Join(defaultRoot, "server"),
			RegistryPath:     "${CONCORD_WORKING_DIR}/sessions.db",
			TickInterval:     "20ms",
			SyncTimeBudget:   "5ms",
			LedgerCacheBytes: 32 << 20,
		},
		Client: ClientConfig{
			WorkingDir:                    filepath.Join(defaultRoot, "client"),
			SnapshotTransactionsPerSecond: 10,
		},
	}
}

// Load loads configuration from the CONCORD_CONFIG environment variable.
//
// There are no fallbacks: if CONCORD_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CONCORD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONCORD_CONFIG environment variable not set; " +
			"set it to the path of your concord.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// After the file and its environment section are applied,
// CONCORD_LISTEN and CONCORD_WORKING_DIR override the server listen
// address and working directory, then ${VAR} patterns in paths are
// expanded.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.applyVariableOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// Resolve returns the configuration at path, or at CONCORD_CONFIG when
// path is empty. With neither set it returns the defaults with the
// deployment variables applied, so binaries run without a config file.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONCORD_CONFIG")
	}
	if path != "" {
		return LoadFile(path)
	}
	cfg := Default()
	cfg.applyVariableOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		server := overrides.Server
		if server.Name != "" {
			c.Server.Name = server.Name
		}
		if server.ListenNetwork != "" {
			c.Server.ListenNetwork = server.ListenNetwork
		}
		if server.ListenAddress != "" {
			c.Server.ListenAddress = server.ListenAddress
		}
		if server.WorkingDir != "" {
			c.Server.WorkingDir = server.WorkingDir
		}
		if server.RegistryPath != "" {
			c.Server.RegistryPath = server.RegistryPath
		}
		if server.TickInterval != "" {
			c.Server.TickInterval = server.TickInterval
		}
		if server.SyncTimeBudget != "" {
			c.Server.SyncTimeBudget = server.SyncTimeBudget
		}
		if server.LedgerCacheBytes != 0 {
			c.Server.LedgerCacheBytes = server.LedgerCacheBytes
		}
		// RetainPackageHistory is a bool, so we always apply it from overrides.
		c.Server.RetainPackageHistory = server.RetainPackageHistory
	}

	if overrides.Client != nil {
		client := overrides.Client
		if client.WorkingDir != "" {
			c.Client.WorkingDir = client.WorkingDir
		}
		if client.SnapshotTransactionsPerSecond != 0 {
			c.Client.SnapshotTransactionsPerSecond = client.SnapshotTransactionsPerSecond
		}
		if client.IncludeObjectClasses != nil {
			c.Client.IncludeObjectClasses = client.IncludeObjectClasses
		}
		if client.ExcludeObjectClasses != nil {
			c.Client.ExcludeObjectClasses = client.ExcludeObjectClasses
		}
	}
}

// applyVariableOverrides applies the two deployment variables that
// container and unit files set instead of editing the config file.
func (c *Config) applyVariableOverrides() {
	if listen := os.Getenv("CONCORD_LISTEN"); listen != "" {
		c.Server.ListenAddress = listen
	}
	if workingDir := os.Getenv("CONCORD_WORKING_DIR"); workingDir != "" {
		c.Server.WorkingDir = workingDir
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.WorkingDir = expandVars(c.Server.WorkingDir, vars)
	vars["CONCORD_WORKING_DIR"] = c.Server.WorkingDir // Update for dependent paths.

	c.Server.ListenAddress = expandVars(c.Server.ListenAddress, vars)
	c.Server.RegistryPath = expandVars(c.Server.RegistryPath, vars)
	c.Client.WorkingDir = expandVars(c.Client.WorkingDir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.ListenNetwork != "tcp" && c.Server.ListenNetwork != "unix" {
		errs = append(errs, fmt.Errorf("server.listen_network must be tcp or unix, got %q", c.Server.ListenNetwork))
	}
	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if c.Server.WorkingDir == "" {
		errs = append(errs, fmt.Errorf("server.working_dir is required"))
	}
	if _, err := c.Server.TickDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Server.SyncBudget(); err != nil {
		errs = append(errs, err)
	}

	if c.Client.SnapshotTransactionsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("client.snapshot_transactions_per_second must not be negative"))
	}
	for _, pattern := range append(append([]string{}, c.Client.IncludeObjectClasses...), c.Client.ExcludeObjectClasses...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("invalid object class pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}

// TickDuration parses TickInterval. It must be positive.
func (s ServerConfig) TickDuration() (time.Duration, error) {
	interval, err := time.ParseDuration(s.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("server.tick_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("server.tick_interval must be positive, got %s", s.TickInterval)
	}
	return interval, nil
}

// SyncBudget parses SyncTimeBudget. Zero is allowed: every tick still
// advances each joining client by one command.
func (s ServerConfig) SyncBudget() (time.Duration, error) {
	budget, err := time.ParseDuration(s.SyncTimeBudget)
	if err != nil {
		return 0, fmt.Errorf("server.sync_time_budget: %w", err)
	}
	if budget < 0 {
		return 0, fmt.Errorf("server.sync_time_budget must not be negative, got %s", s.SyncTimeBudget)
	}
	return budget, nil
}

// EnsurePaths creates the server and client working directories.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.Server.WorkingDir, c.Client.WorkingDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
