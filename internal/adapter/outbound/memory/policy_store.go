// Package memory provides in-memory stores for runtime-managed
// configuration: guard policies and guardrail pipeline definitions.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Modelgate-Labs/modelgate/internal/domain/policy"
)

// ErrNotFound is returned for lookups of unknown ids.
var ErrNotFound = errors.New("not found")

// StoredPolicy wraps a policy with its storage metadata.
type StoredPolicy struct {
	ID        string
	Policy    policy.Policy
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PolicyStore is an in-memory CRUD store for guard policies. All methods
// are safe for concurrent use; reads return copies.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[string]StoredPolicy
	now      func() time.Time
}

// NewPolicyStore creates an empty store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies: make(map[string]StoredPolicy),
		now:      time.Now,
	}
}

// Create stores a new policy and returns its generated id.
func (s *PolicyStore) Create(_ context.Context, p policy.Policy) (StoredPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	stored := StoredPolicy{
		ID:        uuid.NewString(),
		Policy:    p,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.policies[stored.ID] = stored
	return stored, nil
}

// Get returns the policy with the given id.
func (s *PolicyStore) Get(_ context.Context, id string) (StoredPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.policies[id]
	if !ok {
		return StoredPolicy{}, ErrNotFound
	}
	return stored, nil
}

// Update replaces the policy body, preserving creation metadata.
func (s *PolicyStore) Update(_ context.Context, id string, p policy.Policy) (StoredPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.policies[id]
	if !ok {
		return StoredPolicy{}, ErrNotFound
	}
	stored.Policy = p
	stored.UpdatedAt = s.now()
	s.policies[id] = stored
	return stored, nil
}

// Delete removes the policy with the given id.
func (s *PolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return ErrNotFound
	}
	delete(s.policies, id)
	return nil
}

// List returns all policies ordered by creation time.
func (s *PolicyStore) List(_ context.Context) ([]StoredPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoredPolicy, 0, len(s.policies))
	for _, stored := range s.policies {
		out = append(out, stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
