package deployment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and sandbox runs. It
// enforces the same optimistic-concurrency contract as the postgres
// store.
type MemoryStore struct {
	mu          sync.RWMutex
	deployments map[string]*Deployment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deployments: make(map[string]*Deployment)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, d *Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.deployments[d.ID]
	if ok && current.Version != d.Version {
		return ErrVersionConflict
	}

	stored := d.Clone()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.deployments[d.ID] = stored

	// Reflect the accepted write back so the caller can keep saving.
	d.Version = stored.Version
	d.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) ListByOrganization(_ context.Context, orgID string) ([]*Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Deployment
	for _, d := range s.deployments {
		if d.OrganizationID == orgID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
