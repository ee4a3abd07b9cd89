package state

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
)

// MemoryBackend holds the checkpoints of any number of identities in
// process memory
type MemoryBackend struct {
	mu    sync.Mutex
	pages map[string][]string
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{pages: make(map[string][]string)}
}

// the memory store type shares one backend per process, so a stream that is
// provisioned again resumes where it stopped
var processBackend = NewMemoryBackend()

func newMemoryFromConfig(_ config.StateConfig, identity string, _ *zap.Logger) (Store, error) {
	return processBackend.Store(identity), nil
}

// Store returns the store of identity
func (b *MemoryBackend) Store(identity string) *MemoryStore {
	return &MemoryStore{backend: b, identity: identity}
}

// MemoryStore is a Store kept in a MemoryBackend
type MemoryStore struct {
	backend  *MemoryBackend
	identity string
}

// Provision implements Store
func (s *MemoryStore) Provision(context.Context) error { return nil }

// LatestPage implements Store
func (s *MemoryStore) LatestPage(context.Context) (string, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	pages := s.backend.pages[s.identity]
	if len(pages) == 0 {
		return "", nil
	}
	return pages[len(pages)-1], nil
}

// SetLatestPage implements Store
func (s *MemoryStore) SetLatestPage(_ context.Context, page string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	pages := s.backend.pages[s.identity]
	if contains(pages, page) {
		return nil
	}
	s.backend.pages[s.identity] = append(pages, page)
	return nil
}

// ProcessedPages implements Store
func (s *MemoryStore) ProcessedPages(context.Context) ([]string, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	return append([]string(nil), s.backend.pages[s.identity]...), nil
}

// Reset implements Store
func (s *MemoryStore) Reset(context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	delete(s.backend.pages, s.identity)
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
