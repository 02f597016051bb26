// Package memory provides an in-memory manifest store for tests and
// dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/mboyd/paperflow/internal/manifest"
)

// Store keeps manifests in a map guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	byDt map[string]*manifest.Manifest
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{byDt: make(map[string]*manifest.Manifest)}
}

// Load returns a deep copy of the stored manifest for date.
func (s *Store) Load(_ context.Context, date string) (*manifest.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byDt[date]
	if !ok {
		return nil, manifest.ErrNotFound
	}
	return m.Clone(), nil
}

// Save stores a deep copy of m keyed by its date.
func (s *Store) Save(_ context.Context, m *manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDt[m.Date] = m.Clone()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
