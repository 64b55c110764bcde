package kv

// The SQLite store opens its database lazily and creates the table on first
// use. If opening the DB or creating the table fails, it falls back to
// in-memory storage so the client keeps working for the current run.

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/fastbot-go/internal/logger"
)

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	path string

	once    sync.Once
	db      *sql.DB
	initErr error

	mem *Memory // fallback when the database is unavailable
}

// OpenSQLite returns a store for the database at path. The file is not
// touched until the first operation.
func OpenSQLite(path string) *SQLite {
	return &SQLite{path: path, mem: NewMemory()}
}

func (s *SQLite) init() {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			s.initErr = err
			logger.L.Warn("state dir creation failed; using in-memory storage", "path", s.path, "error", err)
			return
		}
	}
	db, err := sql.Open("sqlite", "file:"+s.path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		s.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory storage", "path", s.path, "error", err)
		return
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);`); err != nil {
		db.Close()
		s.initErr = err
		logger.L.Warn("sqlite table creation failed; using in-memory storage", "path", s.path, "error", err)
		return
	}
	s.db = db
	logger.L.Debug("sqlite state DB initialized", "path", s.path)
}

func (s *SQLite) ready() bool {
	s.once.Do(s.init)
	return s.initErr == nil && s.db != nil
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if !s.ready() {
		return s.mem.Get(ctx, key)
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?;`, key).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if !s.ready() {
		return s.mem.Set(ctx, key, value)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key, value, time.Now().UTC())
	return err
}

// Delete removes keys; missing keys are ignored.
func (s *SQLite) Delete(ctx context.Context, keys ...string) error {
	if !s.ready() {
		return s.mem.Delete(ctx, keys...)
	}
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?;`, k); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle, if one was opened.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
