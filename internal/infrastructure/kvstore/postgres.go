// Package kvstore implements the shared atomic key-value store with TTL on
// Postgres. Every cache, ledger and lock in the system goes through this
// client rather than process-local state, so overlapping runs and webhook
// listeners observe the same entries.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TenderWatch/internal/ports"
)

// PostgresStore persists entries in the kv_entries table.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.KeyValueStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the value for key if present and not expired.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, nil
	}

	query := `SELECT value FROM kv_entries WHERE key = $1 AND expires_at > NOW()`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores the value unconditionally with the given TTL.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.db == nil {
		return nil
	}

	query := `INSERT INTO kv_entries (key, value, expires_at)
              VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
              ON CONFLICT (key) DO UPDATE
              SET value = EXCLUDED.value,
                  expires_at = EXCLUDED.expires_at`

	if _, err := s.db.ExecContext(ctx, query, key, value, ttl.Seconds()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetNX stores the value only when no live entry exists for key. An expired
// row counts as absent and is overwritten in the same statement, so the
// insert-if-absent decision is atomic across concurrent callers.
func (s *PostgresStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.db == nil {
		return true, nil
	}

	query := `INSERT INTO kv_entries (key, value, expires_at)
              VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
              ON CONFLICT (key) DO UPDATE
              SET value = EXCLUDED.value,
                  expires_at = EXCLUDED.expires_at
              WHERE kv_entries.expires_at <= NOW()`

	result, err := s.db.ExecContext(ctx, query, key, value, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("setnx rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete removes the entry if it exists.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
