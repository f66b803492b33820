// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearOverrideVariables isolates a test from the caller's environment.
func clearOverrideVariables(t *testing.T) {
	t.Helper()
	t.Setenv("CONCORD_LISTEN", "")
	t.Setenv("CONCORD_WORKING_DIR", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concord.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Server.ListenNetwork != "tcp" || cfg.Server.ListenAddress != "127.0.0.1:6788" {
		t.Errorf("unexpected listen default %s %s", cfg.Server.ListenNetwork, cfg.Server.ListenAddress)
	}
	if cfg.Client.SnapshotTransactionsPerSecond != 10 {
		t.Errorf("expected snapshot rate 10, got %v", cfg.Client.SnapshotTransactionsPerSecond)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresConcordConfig(t *testing.T) {
	t.Setenv("CONCORD_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CONCORD_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CONCORD_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithConcordConfig(t *testing.T) {
	clearOverrideVariables(t)
	path := writeConfig(t, `
environment: staging
server:
  listen_address: 0.0.0.0:9000
  working_dir: /srv/concord
client:
  exclude_object_classes:
    - /Script/Engine.Brush*
`)
	t.Setenv("CONCORD_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen_address from file, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.RegistryPath != "/srv/concord/sessions.db" {
		t.Errorf("expected registry path expanded under working dir, got %s", cfg.Server.RegistryPath)
	}
	if len(cfg.Client.ExcludeObjectClasses) != 1 {
		t.Errorf("expected one exclude pattern, got %v", cfg.Client.ExcludeObjectClasses)
	}
	// Unset keys keep their defaults.
	if cfg.Server.TickInterval != "20ms" {
		t.Errorf("expected default tick interval, got %s", cfg.Server.TickInterval)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "server: [not, a, map")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearOverrideVariables(t)
	path := writeConfig(t, `
environment: production
server:
  sync_time_budget: 5ms
production:
  server:
    sync_time_budget: 2ms
    retain_package_history: true
  client:
    snapshot_transactions_per_second: 4
staging:
  server:
    sync_time_budget: 50ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	budget, err := cfg.Server.SyncBudget()
	if err != nil || budget != 2*time.Millisecond {
		t.Errorf("expected production budget 2ms, got %v (%v)", budget, err)
	}
	if !cfg.Server.RetainPackageHistory {
		t.Error("expected production override of retain_package_history")
	}
	if cfg.Client.SnapshotTransactionsPerSecond != 4 {
		t.Errorf("expected snapshot rate 4, got %v", cfg.Client.SnapshotTransactionsPerSecond)
	}
}

func TestVariableOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: 127.0.0.1:1000
  working_dir: /file/dir
`)
	t.Setenv("CONCORD_LISTEN", "127.0.0.1:2000")
	t.Setenv("CONCORD_WORKING_DIR", "/env/dir")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:2000" {
		t.Errorf("expected CONCORD_LISTEN to win, got %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.WorkingDir != "/env/dir" {
		t.Errorf("expected CONCORD_WORKING_DIR to win, got %s", cfg.Server.WorkingDir)
	}
	if cfg.Server.RegistryPath != "/env/dir/sessions.db" {
		t.Errorf("expected registry under the overridden dir, got %s", cfg.Server.RegistryPath)
	}
}

func TestResolve(t *testing.T) {
	t.Run("defaults without a config file", func(t *testing.T) {
		t.Setenv("CONCORD_CONFIG", "")
		clearOverrideVariables(t)
		t.Setenv("CONCORD_WORKING_DIR", "/srv/concord")

		cfg, err := Resolve("")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.Server.RegistryPath != "/srv/concord/sessions.db" {
			t.Errorf("expected expanded registry path, got %s", cfg.Server.RegistryPath)
		}
	})

	t.Run("explicit path wins over CONCORD_CONFIG", func(t *testing.T) {
		clearOverrideVariables(t)
		t.Setenv("CONCORD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
		path := writeConfig(t, "server:\n  name: harbor\n")

		cfg, err := Resolve(path)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.Server.Name != "harbor" {
			t.Errorf("expected name from the explicit file, got %q", cfg.Server.Name)
		}
	})
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/concord",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/concord",
		},
		{
			input:    "${CONCORD_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "unknown listen network",
			modify: func(c *Config) {
				c.Server.ListenNetwork = "udp"
			},
			wantErr: true,
		},
		{
			name: "zero tick interval",
			modify: func(c *Config) {
				c.Server.TickInterval = "0s"
			},
			wantErr: true,
		},
		{
			name: "zero sync budget",
			modify: func(c *Config) {
				c.Server.SyncTimeBudget = "0s"
			},
			wantErr: false,
		},
		{
			name: "unparseable sync budget",
			modify: func(c *Config) {
				c.Server.SyncTimeBudget = "soon"
			},
			wantErr: true,
		},
		{
			name: "bad class pattern",
			modify: func(c *Config) {
				c.Client.ExcludeObjectClasses = []string{"[unterminated"}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Server.WorkingDir = filepath.Join(tmpDir, "server")
	cfg.Client.WorkingDir = filepath.Join(tmpDir, "client")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Server.WorkingDir, cfg.Client.WorkingDir} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
