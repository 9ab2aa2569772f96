// Package memory provides an in-process file store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prasetia/go-upload-cache/store"
)

type Store struct {
	sync.RWMutex
	files  map[int64]store.File
	nextID int64
}

func NewStore() *Store {
	return &Store{
		files: make(map[int64]store.File),
	}
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.files[id]
	return ok, nil
}

func (s *Store) Get(ctx context.Context, id int64) (store.File, error) {
	s.RLock()
	defer s.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return store.File{}, store.ErrNotFound
	}
	return f, nil
}

func (s *Store) Create(ctx context.Context, name, mime string, data []byte) (store.File, error) {
	s.Lock()
	defer s.Unlock()
	s.nextID++
	f := store.File{
		ID:        s.nextID,
		Name:      name,
		Mime:      mime,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now().UTC(),
	}
	s.files[f.ID] = f
	return f, nil
}
