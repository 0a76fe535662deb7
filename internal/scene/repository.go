package scene

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	scenes map[string]*Scene
}

// NewInMemoryRepository creates an empty scene repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{scenes: make(map[string]*Scene)}
}

// Create stores s, assigning an ID when it has none.
func (r *InMemoryRepository) Create(_ context.Context, s *Scene) (*Scene, error) {
	stored := *s
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ArchivedAt = nil

	r.mu.Lock()
	r.scenes[stored.ID] = &stored
	r.mu.Unlock()

	out := stored
	return &out, nil
}

// GetByID returns a copy of the scene.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scenes[id]
	if !ok {
		return nil, ErrSceneNotFound
	}
	out := *s
	return &out, nil
}

// ListByCampaign returns the campaign's scenes, oldest first.
func (r *InMemoryRepository) ListByCampaign(_ context.Context, campaignID string) ([]*Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Scene
	for _, s := range r.scenes {
		if s.CampaignID == campaignID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Archive marks the scene archived.
func (r *InMemoryRepository) Archive(_ context.Context, id string) (*Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scenes[id]
	if !ok {
		return nil, ErrSceneNotFound
	}
	if s.ArchivedAt == nil {
		now := time.Now().UTC()
		s.ArchivedAt = &now
		s.UpdatedAt = now
	}
	out := *s
	return &out, nil
}
