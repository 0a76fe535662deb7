package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory Repository. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	campaigns map[string]*Campaign
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{campaigns: make(map[string]*Campaign)}
}

// Create stores c, assigning an ID and defaulting the phase to administrative.
func (r *InMemoryRepository) Create(_ context.Context, c *Campaign) (*Campaign, error) {
	stored := *c
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Phase == "" {
		stored.Phase = PhaseAdministrative
	}
	if !stored.Phase.Valid() {
		return nil, ErrInvalidPhase
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.mu.Lock()
	r.campaigns[stored.ID] = &stored
	r.mu.Unlock()

	out := stored
	return &out, nil
}

// GetByID returns a copy of the campaign.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	out := *c
	return &out, nil
}

// SetPhase moves the campaign to phase.
func (r *InMemoryRepository) SetPhase(_ context.Context, id string, phase Phase) (*Campaign, error) {
	if !phase.Valid() {
		return nil, ErrInvalidPhase
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	c.Phase = phase
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}
