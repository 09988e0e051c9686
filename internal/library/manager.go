// Package library provides cached metadata access and scope validation for
// the document library.
package library

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/docchat/internal/storage"
)

// ErrScope classifies invalid conversation scopes: wrong file counts for a
// mode, or references to files missing from the library.
var ErrScope = errors.New("invalid scope")

// FileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type FileStore interface {
	ListFiles() ([]storage.File, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to library file metadata. The cache keeps
// scope validation and provenance lookups off the database on the hot path;
// mutations to the library go through Invalidate.
type Manager struct {
	store FileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   map[string]storage.File
	cachedAt time.Time
}

// NewManager creates a Manager with a 30-second cache TTL.
func NewManager(store FileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   30 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store FileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Filename returns the display filename for a file id.
func (m *Manager) Filename(fileID string) (string, error) {
	files, err := m.files()
	if err != nil {
		return "", err
	}
	f, ok := files[fileID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return f.Filename, nil
}

// Get returns the metadata for a file id.
func (m *Manager) Get(fileID string) (storage.File, error) {
	files, err := m.files()
	if err != nil {
		return storage.File{}, err
	}
	f, ok := files[fileID]
	if !ok {
		return storage.File{}, storage.ErrNotFound
	}
	return f, nil
}

// ValidateScope checks a conversation mode and file scope against the
// current library. Wrong counts and unknown file ids fail with ErrScope.
func (m *Manager) ValidateScope(mode string, fileIDs []string) error {
	switch mode {
	case storage.ModeGeneral, storage.ModeFullLibrary:
		if len(fileIDs) > 0 {
			return fmt.Errorf("%w: mode %s does not take a file scope", ErrScope, mode)
		}
		return nil
	case storage.ModeSingleFile:
		if len(fileIDs) != 1 {
			return fmt.Errorf("%w: single_file requires exactly one file, got %d", ErrScope, len(fileIDs))
		}
	case storage.ModeMultiFile:
		if len(fileIDs) == 0 {
			return fmt.Errorf("%w: multi_file requires at least one file", ErrScope)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrScope, mode)
	}

	files, err := m.files()
	if err != nil {
		return err
	}
	for _, id := range fileIDs {
		if _, ok := files[id]; !ok {
			return fmt.Errorf("%w: file %s is not in the library", ErrScope, id)
		}
	}
	return nil
}

// Invalidate drops the cache so the next read reloads from storage. Call
// after uploading or deleting files.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

func (m *Manager) files() (map[string]storage.File, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		files := m.cached
		m.mu.RUnlock()
		return files, nil
	}
	m.mu.RUnlock()

	// Slow path: write lock for cache miss.
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return m.cached, nil
	}

	list, err := m.store.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("loading library files: %w", err)
	}

	files := make(map[string]storage.File, len(list))
	for _, f := range list {
		files[f.ID] = f
	}
	m.cached = files
	m.cachedAt = m.clock.Now()
	return files, nil
}
