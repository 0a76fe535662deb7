package roll

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/witness"
)

// PostSource loads posts without visibility filtering.
type PostSource interface {
	GetByID(ctx context.Context, id string) (*post.Post, error)
}

// InMemoryRepository is an in-memory Repository. Reads join each roll to its
// post and filter with the rolls policy expression.
type InMemoryRepository struct {
	posts PostSource

	mu    sync.RWMutex
	rolls map[string]*Roll
}

// NewInMemoryRepository creates a roll repository joining against posts.
func NewInMemoryRepository(posts PostSource) *InMemoryRepository {
	return &InMemoryRepository{posts: posts, rolls: make(map[string]*Roll)}
}

// Create stores r as a pending roll.
func (m *InMemoryRepository) Create(_ context.Context, r *Roll) (*Roll, error) {
	stored := r.clone()
	stored.ID = uuid.New().String()
	stored.Status = StatusPending
	stored.Result = nil
	stored.Total = nil
	stored.ResolvedAt = nil
	stored.CreatedAt = time.Now().UTC()
	stored.post = nil

	m.mu.Lock()
	m.rolls[stored.ID] = stored
	m.mu.Unlock()
	return stored.clone(), nil
}

// GetByID returns a copy of the roll.
func (m *InMemoryRepository) GetByID(_ context.Context, id string) (*Roll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rolls[id]
	if !ok {
		return nil, ErrRollNotFound
	}
	return r.clone(), nil
}

func (m *InMemoryRepository) transition(id string, fn func(r *Roll)) (*Roll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rolls[id]
	if !ok {
		return nil, ErrRollNotFound
	}
	if r.Status != StatusPending {
		return nil, witness.ErrRollNotPending
	}
	now := time.Now().UTC()
	r.ResolvedAt = &now
	fn(r)
	return r.clone(), nil
}

// Resolve completes a pending roll.
func (m *InMemoryRepository) Resolve(_ context.Context, id string, result []int, total int) (*Roll, error) {
	return m.transition(id, func(r *Roll) {
		r.Status = StatusCompleted
		r.Result = append([]int(nil), result...)
		r.Total = &total
	})
}

// Invalidate voids a pending roll.
func (m *InMemoryRepository) Invalidate(_ context.Context, id string) (*Roll, error) {
	return m.transition(id, func(r *Roll) {
		r.Status = StatusInvalidated
	})
}

func (m *InMemoryRepository) list(ctx context.Context, v witness.Viewer, match func(r *Roll) bool) ([]*Roll, error) {
	m.mu.RLock()
	var candidates []*Roll
	for _, r := range m.rolls {
		if match(r) {
			candidates = append(candidates, r.clone())
		}
	}
	m.mu.RUnlock()

	out := candidates[:0]
	for _, r := range candidates {
		row := policy.RollRow{CampaignID: r.CampaignID}
		if r.PostID != "" {
			p, err := m.posts.GetByID(ctx, r.PostID)
			if err != nil {
				return nil, err
			}
			rec := p.Record()
			r.post = &rec
			postRow := policy.FromRecord(rec)
			row.Post = &postRow
		}
		if policy.EvalRoll(row, v) {
			out = append(out, r)
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

// ListVisible returns the scene's rolls v may see.
func (m *InMemoryRepository) ListVisible(ctx context.Context, v witness.Viewer, sceneID string) ([]*Roll, error) {
	return m.list(ctx, v, func(r *Roll) bool { return r.SceneID == sceneID })
}

// ListVisibleForPost returns the post's rolls v may see.
func (m *InMemoryRepository) ListVisibleForPost(ctx context.Context, v witness.Viewer, postID string) ([]*Roll, error) {
	return m.list(ctx, v, func(r *Roll) bool { return r.PostID == postID })
}

// HasPendingRolls reports whether the campaign has a pending roll.
func (m *InMemoryRepository) HasPendingRolls(_ context.Context, campaignID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rolls {
		if r.CampaignID == campaignID && r.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}
