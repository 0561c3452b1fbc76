// Package mapping implements the DID mapping repository.
package mapping

import (
	"context"
	"sync"

	"sovren/internal/telephony/models"
	"sovren/pkg/platform/sentinel"
)

// InMemory is a mapping store for tests and MAPPING_STORE=memory runs. Each
// call holds the lock for its whole read-modify-write, which gives the same
// single-row atomicity the Postgres store gets from its statements.
type InMemory struct {
	mu     sync.RWMutex
	byDID  map[string]models.Mapping
	nextID int64
}

func NewInMemory() *InMemory {
	return &InMemory{byDID: make(map[string]models.Mapping)}
}

// NewInMemoryWith returns a store pre-loaded with mappings, as a seeded table
// would be. IDs are assigned in order.
func NewInMemoryWith(seed ...models.Mapping) *InMemory {
	s := NewInMemory()
	for _, m := range seed {
		_, _ = s.Upsert(context.Background(), m.DID, m.Persona, m.CNAM)
	}
	return s
}

func (s *InMemory) FindByDID(_ context.Context, did string) (models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byDID[did]
	if !ok {
		return models.Mapping{}, sentinel.ErrNotFound
	}
	return m, nil
}

func (s *InMemory) Upsert(_ context.Context, did, persona, cnam string) (models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byDID[did]
	if !ok {
		s.nextID++
		m = models.Mapping{ID: s.nextID, DID: did}
	}
	m.Persona = persona
	m.CNAM = cnam
	s.byDID[did] = m
	return m, nil
}

func (s *InMemory) Delete(_ context.Context, did string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDID[did]; !ok {
		return false, nil
	}
	delete(s.byDID, did)
	return true, nil
}

// Len reports how many mappings are stored.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDID)
}
