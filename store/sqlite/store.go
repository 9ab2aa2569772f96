// Package sqlite provides a SQLite-backed file store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/prasetia/go-upload-cache/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	mime TEXT NOT NULL,
	data BLOB NOT NULL,
	created_at_ms INTEGER NOT NULL
);`

// Store persists files in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite file store and bootstraps its schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Exists reports whether a file row with the given id is persisted.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var one int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM files WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query file existence: %w", err)
	}
	return true, nil
}

// Get returns the file row with the given id, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (store.File, error) {
	if err := ctx.Err(); err != nil {
		return store.File{}, err
	}
	var f store.File
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, mime, data, created_at_ms FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Mime, &f.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.File{}, store.ErrNotFound
	}
	if err != nil {
		return store.File{}, fmt.Errorf("query file: %w", err)
	}
	f.CreatedAt = time.UnixMilli(createdAt).UTC()
	return f, nil
}

// Create inserts one file row. The id comes from SQLite's rowid allocation.
func (s *Store) Create(ctx context.Context, name, mime string, data []byte) (store.File, error) {
	if err := ctx.Err(); err != nil {
		return store.File{}, err
	}
	if strings.TrimSpace(name) == "" {
		return store.File{}, fmt.Errorf("file name is required")
	}
	createdAt := time.Now().UTC()
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO files (name, mime, data, created_at_ms) VALUES (?, ?, ?, ?)`,
		name, mime, data, createdAt.UnixMilli())
	if err != nil {
		return store.File{}, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.File{}, fmt.Errorf("read inserted id: %w", err)
	}
	return store.File{
		ID:        id,
		Name:      name,
		Mime:      mime,
		Data:      data,
		CreatedAt: createdAt,
	}, nil
}
