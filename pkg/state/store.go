// Package state persists stream checkpoints: the ordered list of processed
// pages per stream identity, whose last entry is the page to resume from.
package state

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
)

// Store holds the checkpoint of one stream identity
type Store interface {
	// Provision connects to the backend and prepares its layout
	Provision(ctx context.Context) error
	// LatestPage returns the last marked page, "" when none was marked
	LatestPage(ctx context.Context) (string, error)
	// SetLatestPage appends page to the processed pages. Marking a page
	// that is already present is a no-op.
	SetLatestPage(ctx context.Context, page string) error
	// ProcessedPages returns the marked pages in marking order
	ProcessedPages(ctx context.Context) ([]string, error)
	// Reset clears the checkpoint of this identity only
	Reset(ctx context.Context) error
	// Close releases backend connections
	Close() error
}

// Factory creates a store for one stream identity
type Factory func(cfg config.StateConfig, identity string, logger *zap.Logger) (Store, error)

// Identity returns the key a stream's checkpoint is stored under
func Identity(stateID, streamURL string) string {
	return stateID + "_" + streamURL
}

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		"memory": newMemoryFromConfig,
		"sql":    newSQLFromConfig,
		"redis":  newRedisFromConfig,
	}
)

// Register adds a store type
func Register(storeType string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storeType] = factory
}

// Types lists the registered store types
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New creates the store configured by cfg for identity. No connection is
// made until Provision.
func New(cfg config.StateConfig, identity string, logger *zap.Logger) (Store, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, "unknown state store type").
			WithDetail("type", cfg.Type)
	}
	return factory(cfg, identity, logger)
}

func contains(pages []string, page string) bool {
	for _, p := range pages {
		if p == page {
			return true
		}
	}
	return false
}
