package character

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
	mu         sync.RWMutex
	characters map[string]*Character
}

// NewInMemoryRepository creates an empty character repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{characters: make(map[string]*Character)}
}

// Create stores c, assigning an ID when it has none.
func (r *InMemoryRepository) Create(_ context.Context, c *Character) (*Character, error) {
	if !c.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	stored := *c
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ArchivedAt = nil

	r.mu.Lock()
	r.characters[stored.ID] = &stored
	r.mu.Unlock()

	out := stored
	return &out, nil
}

// GetByID returns a copy of the character.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.characters[id]
	if !ok {
		return nil, ErrCharacterNotFound
	}
	out := *c
	return &out, nil
}

// GetMany returns copies of the characters that exist among ids.
func (r *InMemoryRepository) GetMany(_ context.Context, ids []string) ([]*Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(ids))
	var out []*Character
	for _, id := range ids {
		c, ok := r.characters[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ListByOwner returns a user's characters in one campaign, by name.
func (r *InMemoryRepository) ListByOwner(_ context.Context, campaignID, userID string) ([]*Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Character
	for _, c := range r.characters {
		if c.CampaignID == campaignID && userID != "" && c.OwnerUserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetOwner changes the owning user.
func (r *InMemoryRepository) SetOwner(_ context.Context, id, ownerUserID string) (*Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.characters[id]
	if !ok {
		return nil, ErrCharacterNotFound
	}
	c.OwnerUserID = ownerUserID
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

// Archive marks the character archived.
func (r *InMemoryRepository) Archive(_ context.Context, id string) (*Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.characters[id]
	if !ok {
		return nil, ErrCharacterNotFound
	}
	if c.ArchivedAt == nil {
		now := time.Now().UTC()
		c.ArchivedAt = &now
		c.UpdatedAt = now
	}
	out := *c
	return &out, nil
}
