// Package storage keeps one record collection in memory and mirrors it to a
// pretty-printed JSON array on disk.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("record not found")
	// ErrNotInitialized is returned by mutations issued before Init
	ErrNotInitialized = errors.New("store not initialized")
)

// PersistenceError reports a failed rewrite of the backing file
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the single owner of one collection, in memory and on disk.
//
// Mutations are serialized and the file is rewritten through a temporary
// file plus rename. The in-memory list is only replaced once the rewrite
// succeeded, so a failed write leaves both copies on the previous state.
type Store[T entities.Record] struct {
	path     string
	assignID func(T, int) T
	logger   *logger.Logger

	writeMu sync.Mutex

	mu          sync.RWMutex
	items       []T
	highWater   int
	initialized bool
}

// NewStore creates a store backed by path. assignID returns a copy of the
// record carrying the given id.
func NewStore[T entities.Record](path string, assignID func(T, int) T, log *logger.Logger) *Store[T] {
	return &Store[T]{
		path:     path,
		assignID: assignID,
		logger:   log.WithComponent("storage").WithFields("file", path),
	}
}

// Path returns the backing file
func (s *Store[T]) Path() string {
	return s.path
}

// Init loads the backing file. It is idempotent. A missing file is created
// holding an empty array; an unreadable or corrupt file is logged and the
// store starts empty.
func (s *Store[T]) Init(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}

	items, err := ReadFile[T](s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.writeFile(items); err != nil {
			return err
		}
		s.logger.Infow("Created empty data file")
	case err != nil:
		s.logger.Errorw("Failed to load data file, starting empty", "error", err)
		items = []T{}
	}

	s.mu.Lock()
	s.items = items
	s.highWater = maxID(items)
	s.initialized = true
	s.mu.Unlock()

	s.logger.Infow("Record store loaded", "count", len(items))
	return nil
}

// ReadFile parses a data file without creating or locking it. A missing
// file returns an empty list and an error wrapping os.ErrNotExist.
func ReadFile[T entities.Record](path string) ([]T, error) {
	items := []T{}
	data, err := os.ReadFile(path)
	if err != nil {
		return items, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return []T{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// List returns a copy of the current records
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the record with the given id
func (s *Store[T]) Get(id int) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Add assigns the next id to record, persists the collection and returns the
// stored record.
func (s *Store[T]) Add(ctx context.Context, record T) (T, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var zero T
	current, highWater, err := s.snapshot()
	if err != nil {
		return zero, err
	}

	id := highWater
	if m := maxID(current); m > id {
		id = m
	}
	id++

	record = s.assignID(record, id)
	next := make([]T, len(current), len(current)+1)
	copy(next, current)
	next = append(next, record)

	if err := s.commit(next, id); err != nil {
		return zero, err
	}
	return record, nil
}

// Update applies patch to the record with the given id and persists the
// collection. It returns the updated record and the record as it was before.
func (s *Store[T]) Update(ctx context.Context, id int, patch func(T) T) (updated T, prior T, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, highWater, err := s.snapshot()
	if err != nil {
		return updated, prior, err
	}

	idx := indexOf(current, id)
	if idx < 0 {
		return updated, prior, ErrNotFound
	}

	prior = current[idx]
	updated = s.assignID(patch(prior), id)

	next := make([]T, len(current))
	copy(next, current)
	next[idx] = updated

	if err := s.commit(next, highWater); err != nil {
		var zero T
		return zero, zero, err
	}
	return updated, prior, nil
}

// Delete removes the record with the given id, persists the collection and
// returns the removed record.
func (s *Store[T]) Delete(ctx context.Context, id int) (T, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var zero T
	current, highWater, err := s.snapshot()
	if err != nil {
		return zero, err
	}

	idx := indexOf(current, id)
	if idx < 0 {
		return zero, ErrNotFound
	}

	removed := current[idx]
	next := make([]T, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)

	if err := s.commit(next, highWater); err != nil {
		return zero, err
	}
	return removed, nil
}

// snapshot must be called with writeMu held
func (s *Store[T]) snapshot() ([]T, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, 0, ErrNotInitialized
	}
	return s.items, s.highWater, nil
}

// commit must be called with writeMu held
func (s *Store[T]) commit(next []T, highWater int) error {
	if err := s.writeFile(next); err != nil {
		s.logger.Errorw("Failed to persist records", "error", err)
		return err
	}

	s.mu.Lock()
	s.items = next
	if highWater > s.highWater {
		s.highWater = highWater
	}
	s.mu.Unlock()
	return nil
}

func (s *Store[T]) writeFile(items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func indexOf[T entities.Record](items []T, id int) int {
	for i, item := range items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

func maxID[T entities.Record](items []T) int {
	m := 0
	for _, item := range items {
		if id := item.RecordID(); id > m {
			m = id
		}
	}
	return m
}
