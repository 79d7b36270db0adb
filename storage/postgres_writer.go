package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"market-search/utils"
)

// PostgresBackend keeps persisted values in a single key/value table.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend opens a connection to PostgreSQL, waits for it to accept
// pings, runs the schema migration and returns a ready-to-use backend.
func NewPostgresBackend(ctx context.Context, dsn string, retries int, logger utils.Logger) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{
		MaxAttempts: retries,
		BaseDelay:   2 * time.Second,
		Logger:      logger,
	}
	if err := retry.Do(ctx, "postgres ping", func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pb := &PostgresBackend{db: db}
	if err := pb.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pb, nil
}

func (pb *PostgresBackend) migrate(ctx context.Context) error {
	_, err := pb.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT        PRIMARY KEY,
			value      BYTEA       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (pb *PostgresBackend) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := pb.db.QueryRow(`SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get %q: %w", key, err)
	}
	return value, true, nil
}

func (pb *PostgresBackend) Put(key string, value []byte) error {
	_, err := pb.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: put %q: %w", key, err)
	}
	return nil
}

func (pb *PostgresBackend) Delete(key string) error {
	if _, err := pb.db.Exec(`DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %q: %w", key, err)
	}
	return nil
}

func (pb *PostgresBackend) Close() error {
	return pb.db.Close()
}
