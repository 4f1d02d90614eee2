package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteWriter publishes compiled multipliers to a local SQLite database
// with the same schema as PostgresWriter.
type SQLiteWriter struct {
	sqlStore
}

// NewSQLiteWriter opens (or creates) the database at path. ":memory:" opens
// a private in-memory database.
func NewSQLiteWriter(ctx context.Context, path string) (*SQLiteWriter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create output dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragma: %w", err)
	}

	sw := &SQLiteWriter{sqlStore{
		db:          db,
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
	}}
	if err := sw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sw, nil
}
