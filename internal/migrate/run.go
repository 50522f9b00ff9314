// Package migrate applies the embedded SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/medibook/clinic-gate/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration describes one embedded migration and whether it has been applied.
type Migration struct {
	Version   string
	AppliedAt *time.Time
}

// Applied reports whether the migration has been recorded.
func (m Migration) Applied() bool { return m.AppliedAt != nil }

const createTrackingTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Run applies all embedded migrations in version order. It is safe to call repeatedly.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createTrackingTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	versions, err := embeddedVersions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		if applyErr := apply(ctx, db, v); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Status lists every embedded migration with its applied time, if any.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, createTrackingTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]time.Time)
	for rows.Next() {
		var v string
		var at time.Time
		if scanErr := rows.Scan(&v, &at); scanErr != nil {
			return nil, fmt.Errorf("scan migration row: %w", scanErr)
		}
		applied[v] = at
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate migrations: %w", rowsErr)
	}

	out := make([]Migration, 0, len(versions))
	for _, v := range versions {
		m := Migration{Version: v}
		if at, ok := applied[v]; ok {
			m.AppliedAt = &at
		}
		out = append(out, m)
	}
	return out, nil
}

func embeddedVersions() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func apply(ctx context.Context, db *sql.DB, version string) error {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", version, err)
	}
	if exists {
		return nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	logger := slog.Default().With("component", "migrations")
	logger.InfoContext(ctx, "applying migration", "version", version)

	err = pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, string(body)); execErr != nil {
			return fmt.Errorf("exec migration %s: %w", version, execErr)
		}
		if _, insErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); insErr != nil {
			return fmt.Errorf("record migration %s: %w", version, insErr)
		}
		return nil
	}})
	if err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	return nil
}
