package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore persists usage records in SQL backends (SQLite or Postgres).
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore creates a SQLite-backed usage store. dsn can be a file
// path (e.g. /tmp/usage.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "relay-usage.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectSQLite}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a Postgres-backed usage store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectPostgres}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}
	ddl := `
CREATE TABLE IF NOT EXISTS usage_records (
	model TEXT NOT NULL,
	gateway TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
)`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create usage_records table: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, u Usage) error {
	query := `INSERT INTO usage_records
	(model, gateway, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == dialectPostgres {
		query = `INSERT INTO usage_records
	(model, gateway, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}
	_, err := s.db.ExecContext(ctx, query,
		u.Model, u.Gateway, u.PromptTokens, u.CompletionTokens,
		u.TotalTokens, u.LatencyMs, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error { return s.db.Close() }

// Count returns the number of stored usage records, mainly for tests and
// the admin surface.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}
	return n, nil
}
