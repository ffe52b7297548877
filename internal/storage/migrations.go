package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Article ledger",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS articles (
					url TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					source TEXT,
					is_fund_news INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					reason TEXT,
					extracted INTEGER NOT NULL DEFAULT 0,
					fund_json TEXT,
					first_seen TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_articles_updated_at ON articles(updated_at)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Run history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					started_at TEXT NOT NULL,
					finished_at TEXT NOT NULL,
					fetched INTEGER NOT NULL DEFAULT 0,
					prefiltered INTEGER NOT NULL DEFAULT 0,
					confirmed INTEGER NOT NULL DEFAULT 0,
					extracted INTEGER NOT NULL DEFAULT 0,
					added INTEGER NOT NULL DEFAULT 0,
					updated INTEGER NOT NULL DEFAULT 0,
					dry_run INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (l *Ledger) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := l.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := l.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := l.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SchemaVersion returns PRAGMA user_version.
func (l *Ledger) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := l.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
