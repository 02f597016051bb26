package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// processedEntry records one handled file.
type processedEntry struct {
	Hash        string    `json:"hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ProcessedSet is the persisted record of files already handed to the
// dispatcher. It is keyed by absolute path; the content hash guards against
// a path being reused for different bytes.
type ProcessedSet struct {
	path    string
	mu      sync.Mutex
	entries map[string]processedEntry
}

// LoadProcessedSet reads the set from path, starting empty when the file
// does not exist yet.
func LoadProcessedSet(path string) (*ProcessedSet, error) {
	s := &ProcessedSet{
		path:    path,
		entries: make(map[string]processedEntry),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed set: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("decode processed set %s: %w", path, err)
	}
	return s, nil
}

// Contains reports whether file (with the given content hash) was already
// processed.
func (s *ProcessedSet) Contains(file, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[file]
	return ok && e.Hash == hash
}

// Mark records the file as processed and persists the set.
func (s *ProcessedSet) Mark(file, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[file] = processedEntry{Hash: hash, ProcessedAt: at}
	return s.persistLocked()
}

// Len returns the number of processed files.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *ProcessedSet) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode processed set: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".processed-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp processed set: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write processed set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close processed set: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace processed set: %w", err)
	}
	return nil
}
