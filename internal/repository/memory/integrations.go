package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/creatorhub/internal/domain"
)

// IntegrationStore holds brand integration configs in memory.
type IntegrationStore struct {
	mu      sync.RWMutex
	configs map[string]domain.IntegrationConfig // keyed by brand id + provider
}

// NewIntegrationStore returns an empty store.
func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{configs: make(map[string]domain.IntegrationConfig)}
}

// Put stores or replaces a brand's config for its provider.
func (s *IntegrationStore) Put(_ context.Context, c domain.IntegrationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c.BrandID+"/"+string(c.Provider)] = c
	return nil
}

// ListEnabled returns the brand's enabled configs ordered by provider.
func (s *IntegrationStore) ListEnabled(_ context.Context, brandID string) ([]domain.IntegrationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.IntegrationConfig
	for _, c := range s.configs {
		if c.BrandID == brandID && c.Enabled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Get returns one config, or ok=false.
func (s *IntegrationStore) Get(_ context.Context, brandID string, provider domain.IntegrationProvider) (*domain.IntegrationConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[brandID+"/"+string(provider)]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}
