package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Modelgate-Labs/modelgate/internal/config"
)

// StoredGuardrail is a named, runtime-managed pipeline definition.
type StoredGuardrail struct {
	ID        string
	Name      string
	Config    config.GuardrailConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GuardrailStore is an in-memory CRUD store for guardrail definitions.
type GuardrailStore struct {
	mu          sync.RWMutex
	definitions map[string]StoredGuardrail
	now         func() time.Time
}

// NewGuardrailStore creates an empty store.
func NewGuardrailStore() *GuardrailStore {
	return &GuardrailStore{
		definitions: make(map[string]StoredGuardrail),
		now:         time.Now,
	}
}

// Create stores a new definition and returns it with a generated id.
func (s *GuardrailStore) Create(_ context.Context, name string, cfg config.GuardrailConfig) (StoredGuardrail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	stored := StoredGuardrail{
		ID:        uuid.NewString(),
		Name:      name,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.definitions[stored.ID] = stored
	return stored, nil
}

// Get returns the definition with the given id.
func (s *GuardrailStore) Get(_ context.Context, id string) (StoredGuardrail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.definitions[id]
	if !ok {
		return StoredGuardrail{}, ErrNotFound
	}
	return stored, nil
}

// Update replaces the definition body, preserving creation metadata.
func (s *GuardrailStore) Update(_ context.Context, id, name string, cfg config.GuardrailConfig) (StoredGuardrail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.definitions[id]
	if !ok {
		return StoredGuardrail{}, ErrNotFound
	}
	stored.Name = name
	stored.Config = cfg
	stored.UpdatedAt = s.now()
	s.definitions[id] = stored
	return stored, nil
}

// Delete removes the definition with the given id.
func (s *GuardrailStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[id]; !ok {
		return ErrNotFound
	}
	delete(s.definitions, id)
	return nil
}

// List returns all definitions ordered by creation time.
func (s *GuardrailStore) List(_ context.Context) ([]StoredGuardrail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoredGuardrail, 0, len(s.definitions))
	for _, stored := range s.definitions {
		out = append(out, stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
