package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "exam-runner.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.put(ctx, Key(snap.TestID), string(data)); err != nil {
		return fmt.Errorf("save progress for test %d: %w", snap.TestID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, testID int) (*Snapshot, error) {
	value, ok, err := s.get(ctx, Key(testID))
	if err != nil {
		return nil, fmt.Errorf("load progress for test %d: %w", testID, err)
	}
	if !ok {
		return nil, nil
	}
	return decodeSnapshot([]byte(value))
}

func (s *SQLiteStore) Clear(ctx context.Context, testID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, Key(testID)); err != nil {
		return fmt.Errorf("clear progress for test %d: %w", testID, err)
	}
	return nil
}

func (s *SQLiteStore) SetRedirect(ctx context.Context, path string) error {
	if err := s.put(ctx, RedirectKey, path); err != nil {
		return fmt.Errorf("set redirect: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Redirect(ctx context.Context) (string, error) {
	value, _, err := s.get(ctx, RedirectKey)
	if err != nil {
		return "", fmt.Errorf("read redirect: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) ClearRedirect(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, RedirectKey); err != nil {
		return fmt.Errorf("clear redirect: %w", err)
	}
	return nil
}

func (s *SQLiteStore) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
	)
	return err
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
