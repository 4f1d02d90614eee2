package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"open-dio/utils"
)

// PostgresWriter publishes compiled multipliers to PostgreSQL.
type PostgresWriter struct {
	sqlStore
}

// NewPostgresWriter opens a connection to PostgreSQL, waits for it with the
// given retry policy, runs schema migrations, and returns a ready-to-use
// PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string, retry utils.RetryConfig) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{sqlStore{
		db:          db,
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return pw, nil
}
