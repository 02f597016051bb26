// Package extract implements listing-page extraction strategies.
//
// Listing pages change shape without notice, so extraction is a named,
// registered strategy rather than hard-coded parsing: nextdata reads the
// embedded __NEXT_DATA__ JSON blob, selectors walks a layered set of CSS
// selectors, and arxivlinks falls back to scanning anchors for arXiv ids.
package extract

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mboyd/paperflow/internal/listing"
)

// Strategy turns a fetched listing page into paper records.
type Strategy interface {
	// Name identifies the strategy inside the registry.
	Name() string
	// Extract parses the page body for the given listing date.
	Extract(body []byte, date time.Time) ([]listing.PaperRecord, error)
}

// Registry resolves extraction strategies by name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry pre-loaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	r.Register(NewNextData())
	r.Register(NewSelectors())
	r.Register(NewArxivLinks())
	return r
}

// Register adds or replaces a strategy under its name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Resolve returns the named strategy or an error listing the known names.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown extraction strategy %q (known: %v)", name, r.names())
	}
	return s, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain runs strategies in order and returns the first non-empty result.
// It mirrors the layered fallback of the listing page: structured JSON
// first, CSS selectors second, raw anchor scan last.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain over the provided strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Name identifies the chain inside the registry.
func (c *Chain) Name() string { return "chain" }

// Extract tries each strategy until one yields records.
func (c *Chain) Extract(body []byte, date time.Time) ([]listing.PaperRecord, error) {
	var lastErr error
	for _, s := range c.strategies {
		records, err := s.Extract(body, date)
		if err != nil {
			lastErr = err
			continue
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all extraction strategies failed, last: %w", lastErr)
	}
	return nil, nil
}
