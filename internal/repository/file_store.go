package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/birdhouse-labs/aviary/internal/model"
)

// FileStore persists the collection as a pretty-printed JSON array. The file
// is created empty on first use. Writes replace the whole file in place, so a
// crash mid-write can truncate it; each completed write is self-consistent.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore at path, creating an empty collection file
// when none exists.
func NewFileStore(path string) (*FileStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte("[]"), 0o644); werr != nil {
			return nil, fmt.Errorf("create records file %s: %w", path, werr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat records file %s: %w", path, err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the full collection.
func (s *FileStore) Load() ([]model.Bird, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read records file %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var birds []model.Bird
	if err := json.Unmarshal(raw, &birds); err != nil {
		return nil, fmt.Errorf("decode records file %s: %w", s.path, err)
	}
	return birds, nil
}

// Save rewrites the full collection.
func (s *FileStore) Save(birds []model.Bird) error {
	if birds == nil {
		birds = []model.Bird{}
	}
	data, err := json.MarshalIndent(birds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write records file %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore is an in-memory Persistence for tests. Setting SaveErr makes
// every Save fail with it, simulating a persistence outage.
type MemoryStore struct {
	mu      sync.Mutex
	birds   []model.Bird
	SaveErr error
}

// Load returns the held collection.
func (s *MemoryStore) Load() ([]model.Bird, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Bird(nil), s.birds...), nil
}

// Save replaces the held collection.
func (s *MemoryStore) Save(birds []model.Bird) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.birds = append([]model.Bird(nil), birds...)
	return nil
}
