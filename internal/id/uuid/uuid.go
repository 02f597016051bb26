// Package uuid generates run identifiers.
package uuid

import "github.com/google/uuid"

// Generator produces UUIDv4 identifiers.
type Generator struct{}

// New returns a UUID generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh UUID string.
func (g *Generator) NewID() string {
	return uuid.NewString()
}
