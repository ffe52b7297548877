package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is how timestamps are stored in TEXT columns. UTC RFC 3339
// strings sort chronologically.
const timeLayout = time.RFC3339

// Ledger is the SQLite-backed record of what previous runs already paid for.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the ledger database at dbPath.
// Call Migrate before use.
func Open(dbPath string) (*Ledger, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Ledger{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// psql builds SQLite-compatible statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
