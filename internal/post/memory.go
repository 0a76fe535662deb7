package post

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/witness"
)

// InMemoryRepository is an in-memory Repository. Captures and unhides hold
// the scene's roster snapshot lock; reads filter with the storage policy
// expression.
type InMemoryRepository struct {
	tracker *roster.InMemoryTracker

	mu    sync.RWMutex
	posts map[string]*Post
	seqs  map[string]int64 // last seq per scene
}

// NewInMemoryRepository creates a post repository reading rosters from tracker.
func NewInMemoryRepository(tracker *roster.InMemoryTracker) *InMemoryRepository {
	return &InMemoryRepository{tracker: tracker, posts: make(map[string]*Post), seqs: make(map[string]int64)}
}

// Create captures the roster and stores the post.
func (r *InMemoryRepository) Create(ctx context.Context, p *Post, hidden bool, check CaptureFunc) (*Post, error) {
	var out *Post
	err := r.tracker.WithSnapshot(ctx, p.SceneID, func(current witness.Set) error {
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
		stored := p.clone()
		stored.ID = uuid.New().String()
		stored.Witnesses = witness.Capture(current, hidden)
		stored.CreatedAt = time.Now().UTC()
		stored.UnhiddenAt = nil

		r.mu.Lock()
		r.seqs[stored.SceneID]++
		stored.Seq = r.seqs[stored.SceneID]
		r.posts[stored.ID] = stored
		r.mu.Unlock()

		out = stored.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns a copy of the post.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return p.clone(), nil
}

// Unhide applies plan under the scene's roster lock.
func (r *InMemoryRepository) Unhide(ctx context.Context, id string, plan PlanFunc) (*Post, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *Post
	err = r.tracker.WithSnapshot(ctx, current.SceneID, func(roster witness.Set) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		p, ok := r.posts[id]
		if !ok {
			return ErrPostNotFound
		}
		next, err := plan(p.clone(), roster)
		if err != nil {
			return err
		}
		if err := witness.CheckTransition(p.Witnesses, next); err != nil {
			return err
		}
		now := time.Now().UTC()
		p.Witnesses = next.Clone()
		p.UnhiddenAt = &now
		out = p.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Finalize clears the draft flag.
func (r *InMemoryRepository) Finalize(_ context.Context, id string) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	if !p.Draft {
		return nil, witness.ErrNotDraft
	}
	p.Draft = false
	return p.clone(), nil
}

func visible(p *Post, v witness.Viewer) bool {
	return policy.Posts.Eval(policy.FromRecord(p.Record()), v)
}

// GetVisible returns the post if v may see it.
func (r *InMemoryRepository) GetVisible(_ context.Context, v witness.Viewer, id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok || !visible(p, v) {
		return nil, ErrPostNotFound
	}
	return p.clone(), nil
}

// ListVisible returns the scene's posts v may see, in Seq order.
func (r *InMemoryRepository) ListVisible(_ context.Context, v witness.Viewer, sceneID string, page Page) ([]*Post, error) {
	r.mu.RLock()
	var out []*Post
	for _, p := range r.posts {
		if p.SceneID == sceneID && p.Seq > page.AfterSeq && visible(p, v) {
			out = append(out, p.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit := page.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
