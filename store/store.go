// Package store defines the file persistence contract and its record type.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no file exists for the given id.
var ErrNotFound = errors.New("store: file not found")

// File is a persisted upload: its binary payload plus metadata. The ID is
// assigned once at creation and never changes.
type File struct {
	ID        int64
	Name      string
	Mime      string
	Data      []byte
	CreatedAt time.Time
}

// Store is the source of truth for files. Implementations must not cache;
// memoization lives in the cache package.
type Store interface {
	// Exists reports whether a file with the given id is persisted.
	Exists(ctx context.Context, id int64) (bool, error)
	// Get returns the file with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (File, error)
	// Create persists a new file and returns it with a freshly assigned id.
	Create(ctx context.Context, name, mime string, data []byte) (File, error)
}
