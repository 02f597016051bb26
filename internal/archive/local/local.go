// Package local implements a filesystem archive provider.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider writes artifacts under a base directory.
type Provider struct {
	baseDir string
}

// New validates the base directory and returns a Provider.
func New(baseDir string) (*Provider, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("archive base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Provider{baseDir: baseDir}, nil
}

// Save writes data to baseDir/objectName, refusing paths that escape the
// base directory.
func (p *Provider) Save(_ context.Context, objectName string, data []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("object name is required")
	}
	fullPath := filepath.Join(p.baseDir, objectName)

	cleanBase := filepath.Clean(p.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("object name escapes archive directory")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create archive subdirectory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return fmt.Errorf("write archive object: %w", err)
	}
	return nil
}
