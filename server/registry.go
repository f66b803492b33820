// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/sqlitepool"
)

// registryMigrations are applied in order by sqlitepool. Append only.
var registryMigrations = []string{
	`CREATE TABLE sessions (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		owner_user   TEXT NOT NULL,
		owner_device TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		directory    TEXT NOT NULL
	);`,
}

// RegistryEntry is one registered session.
type RegistryEntry struct {
	Info      schema.SessionInfo
	Directory string
}

// Registry records every session the server has created, hosted or
// not, so that a session can be restored by name after a restart.
type Registry struct {
	pool *sqlitepool.Pool
}

// OpenRegistry opens or creates the registry database at path.
func OpenRegistry(path string, logger *slog.Logger) (*Registry, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       path,
		Logger:     logger,
		Migrations: registryMigrations,
	})
	if err != nil {
		return nil, fmt.Errorf("opening session registry: %w", err)
	}
	return &Registry{pool: pool}, nil
}

// Close closes the database.
func (r *Registry) Close() error { return r.pool.Close() }

// Put inserts or replaces the entry for entry.Info.SessionID.
func (r *Registry) Put(ctx context.Context, entry RegistryEntry) error {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Put(conn)

	info := entry.Info
	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO sessions
		(id, name, owner_user, owner_device, created_at, directory)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			info.SessionID.String(),
			info.SessionName,
			info.OwnerUserName,
			info.OwnerDeviceName,
			info.CreatedAt.UnixNano(),
			entry.Directory,
		},
	})
	if err != nil {
		return fmt.Errorf("registering session %s: %w", info.SessionName, err)
	}
	return nil
}

// Remove deletes the entry for id. Removing an absent entry is not an
// error.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Put(conn)

	if err := sqlitex.Execute(conn, "DELETE FROM sessions WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id.String()},
	}); err != nil {
		return fmt.Errorf("removing session %s: %w", id, err)
	}
	return nil
}

// FindByName returns the entry named name.
func (r *Registry) FindByName(ctx context.Context, name string) (RegistryEntry, bool, error) {
	entries, err := r.query(ctx, "WHERE name = ?", name)
	if err != nil || len(entries) == 0 {
		return RegistryEntry{}, false, err
	}
	return entries[0], true, nil
}

// Find returns the entry for id.
func (r *Registry) Find(ctx context.Context, id uuid.UUID) (RegistryEntry, bool, error) {
	entries, err := r.query(ctx, "WHERE id = ?", id.String())
	if err != nil || len(entries) == 0 {
		return RegistryEntry{}, false, err
	}
	return entries[0], true, nil
}

// List returns every entry ordered by creation time, then name.
func (r *Registry) List(ctx context.Context) ([]RegistryEntry, error) {
	return r.query(ctx, "")
}

func (r *Registry) query(ctx context.Context, where string, args ...any) ([]RegistryEntry, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Put(conn)

	var entries []RegistryEntry
	query := `SELECT id, name, owner_user, owner_device, created_at, directory
		FROM sessions ` + where + ` ORDER BY created_at, name`
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := uuid.Parse(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("session id %q: %w", stmt.ColumnText(0), err)
			}
			entries = append(entries, RegistryEntry{
				Info: schema.SessionInfo{
					SessionID:       id,
					SessionName:     stmt.ColumnText(1),
					OwnerUserName:   stmt.ColumnText(2),
					OwnerDeviceName: stmt.ColumnText(3),
					CreatedAt:       time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				},
				Directory: stmt.ColumnText(5),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying session registry: %w", err)
	}
	return entries, nil
}
