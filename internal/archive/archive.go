// Package archive defines the interface for an off-host copy of dispatched
// PDFs and run reports. The abstraction keeps the pipeline independent of
// a specific storage backend.
package archive

import "context"

// Provider saves artifacts under an object name.
type Provider interface {
	// Save uploads data to the given object path/key.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider is the default when archiving is not configured.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
