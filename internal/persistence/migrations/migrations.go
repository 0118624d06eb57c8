// Package migrations applies the embedded schema to Postgres and SQLite databases.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects the migration set and placeholder style.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const createTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one embedded SQL file.
type Migration struct {
	Name string
	Up   string
}

// List returns the migrations of dialect in apply order.
func List(dialect Dialect) ([]Migration, error) {
	dir := string(dialect)
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("unknown dialect %q: %w", dialect, err)
	}
	out := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := files.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: strings.TrimSuffix(entry.Name(), ".sql"), Up: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Apply runs every migration of dialect not yet recorded in schema_migrations.
// Each migration runs in its own transaction together with its bookkeeping row.
func Apply(ctx context.Context, db *sql.DB, dialect Dialect) ([]string, error) {
	migrations, err := List(dialect)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	countQuery, insertStmt := statements(dialect)
	applied := make([]string, 0)
	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, countQuery, m.Name).Scan(&count); err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if count > 0 {
			continue
		}
		if err := run(ctx, db, m, insertStmt); err != nil {
			return applied, fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

func run(ctx context.Context, db *sql.DB, m Migration, insertStmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertStmt, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func statements(dialect Dialect) (count, insert string) {
	if dialect == Postgres {
		return "SELECT COUNT(*) FROM schema_migrations WHERE name = $1",
			"INSERT INTO schema_migrations (name) VALUES ($1)"
	}
	return "SELECT COUNT(*) FROM schema_migrations WHERE name = ?",
		"INSERT INTO schema_migrations (name) VALUES (?)"
}
