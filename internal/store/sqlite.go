package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements KV using SQLite. Session-scope rows carry an
// expires_at deadline; durable rows store 0.
type SQLiteStore struct {
	db         *sql.DB
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string, sessionTTL time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, sessionTTL: sessionTTL, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		scope TEXT NOT NULL,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope, namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at) WHERE expires_at > 0;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Get returns a live value.
func (s *SQLiteStore) Get(ctx context.Context, scope Scope, namespace, key string) (string, bool, error) {
	if err := validScope(scope); err != nil {
		return "", false, err
	}
	query := `
		SELECT value FROM kv
		WHERE scope = ? AND namespace = ? AND key = ?
		  AND (expires_at = 0 OR expires_at > ?)`

	var value string
	err := s.db.QueryRowContext(ctx, query, scope.String(), namespace, key, s.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// Set upserts a value, retrying on SQLITE_BUSY.
func (s *SQLiteStore) Set(ctx context.Context, scope Scope, namespace, key, value string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	now := s.now()
	var expiresAt int64
	if scope == ScopeSession && s.sessionTTL > 0 {
		expiresAt = now.Add(s.sessionTTL).UnixMilli()
	}

	query := `
	INSERT INTO kv (scope, namespace, key, value, expires_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(scope, namespace, key) DO UPDATE SET
		value = excluded.value,
		expires_at = excluded.expires_at,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, "set", func() error {
		_, err := s.db.ExecContext(ctx, query, scope.String(), namespace, key, value, expiresAt, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", scope, key, err)
		}
		return nil
	})
}

// Remove deletes a value, retrying on SQLITE_BUSY.
func (s *SQLiteStore) Remove(ctx context.Context, scope Scope, namespace, key string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	query := `DELETE FROM kv WHERE scope = ? AND namespace = ? AND key = ?`
	return withBusyRetry(ctx, "remove", func() error {
		if _, err := s.db.ExecContext(ctx, query, scope.String(), namespace, key); err != nil {
			return fmt.Errorf("remove %s/%s: %w", scope, key, err)
		}
		return nil
	})
}

// DeleteExpired purges session rows whose deadline has passed.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`
	result, err := s.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return result.RowsAffected()
}

// withBusyRetry runs op with exponential backoff on SQLite lock contention.
func withBusyRetry(ctx context.Context, opName string, op func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isLockConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
			slog.Debug("SQLite busy, retrying", "op", opName, "attempt", i+1, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", opName, maxRetries, err)
}

// isLockConflict reports SQLITE_BUSY and "database is locked" errors, the two
// forms of lock contention worth retrying.
func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
