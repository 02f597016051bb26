// Package file persists manifests as one JSON document per date under a
// state directory. This is the default store; it survives process restarts
// and requires no external services.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/mboyd/paperflow/internal/manifest"
)

var validDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Store writes manifest_<date>.json files under dir.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the state directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads the manifest for date from disk.
func (s *Store) Load(_ context.Context, date string) (*manifest.Manifest, error) {
	path, err := s.path(date)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, manifest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Tasks == nil {
		m.Tasks = make(map[string]*manifest.Task)
	}
	return &m, nil
}

// Save writes the manifest atomically: a temp file in the same directory is
// renamed over the final path, so readers never see a half-written document.
func (s *Store) Save(_ context.Context, m *manifest.Manifest) error {
	path, err := s.path(m.Date)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) path(date string) (string, error) {
	if !validDate.MatchString(date) {
		return "", fmt.Errorf("invalid manifest date %q", date)
	}
	return filepath.Join(s.dir, "manifest_"+date+".json"), nil
}
