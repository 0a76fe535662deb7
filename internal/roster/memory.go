package roster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/witness"
)

// InMemoryTracker is an in-memory Tracker.
//
// Each scene has its own RWMutex: mutations hold it exclusively, snapshot
// readers share it. mu guards the maps and is always taken after a scene lock.
type InMemoryTracker struct {
	mu       sync.Mutex
	locks    map[string]*sync.RWMutex
	resident map[string]string      // characterID -> sceneID
	stays    map[string][]*Presence // sceneID -> stays in join order
}

// NewInMemoryTracker creates an empty tracker.
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{
		locks:    make(map[string]*sync.RWMutex),
		resident: make(map[string]string),
		stays:    make(map[string][]*Presence),
	}
}

func (t *InMemoryTracker) sceneLock(sceneID string) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[sceneID]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[sceneID] = l
	}
	return l
}

// AddToScene makes the character present in the scene.
func (t *InMemoryTracker) AddToScene(_ context.Context, sceneID, characterID string) error {
	l := t.sceneLock(sceneID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.resident[characterID]; ok {
		if current == sceneID {
			return nil
		}
		return witness.ErrCharacterInOtherScene
	}
	t.resident[characterID] = sceneID
	t.stays[sceneID] = append(t.stays[sceneID], &Presence{
		ID:          uuid.New().String(),
		SceneID:     sceneID,
		CharacterID: characterID,
		JoinedAt:    time.Now().UTC(),
	})
	return nil
}

// RemoveFromScene ends the character's stay in the scene.
func (t *InMemoryTracker) RemoveFromScene(_ context.Context, sceneID, characterID string) error {
	l := t.sceneLock(sceneID)
	l.Lock()
	defer l.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resident[characterID] != sceneID {
		return nil
	}
	delete(t.resident, characterID)
	now := time.Now().UTC()
	for _, p := range t.stays[sceneID] {
		if p.CharacterID == characterID && p.LeftAt == nil {
			p.LeftAt = &now
		}
	}
	return nil
}

// rosterLocked builds the roster of sceneID. Callers hold t.mu.
func (t *InMemoryTracker) rosterLocked(sceneID string) witness.Set {
	roster := witness.Set{}
	for _, p := range t.stays[sceneID] {
		if p.LeftAt == nil {
			roster[p.CharacterID] = struct{}{}
		}
	}
	return roster
}

// WithSnapshot runs fn with the scene's roster while holding the scene's read
// lock, so no roster mutation of that scene can happen until fn returns. fn
// owns the set it receives. fn must not mutate the same scene's roster.
func (t *InMemoryTracker) WithSnapshot(ctx context.Context, sceneID string, fn func(roster witness.Set) error) error {
	l := t.sceneLock(sceneID)
	l.RLock()
	defer l.RUnlock()

	t.mu.Lock()
	roster := t.rosterLocked(sceneID)
	t.mu.Unlock()

	return fn(roster)
}

// CurrentRoster returns a snapshot of the scene's roster.
func (t *InMemoryTracker) CurrentRoster(ctx context.Context, sceneID string) (witness.Set, error) {
	var out witness.Set
	err := t.WithSnapshot(ctx, sceneID, func(roster witness.Set) error {
		out = roster
		return nil
	})
	return out, err
}

// History returns every stay in the scene, in join order.
func (t *InMemoryTracker) History(_ context.Context, sceneID string) ([]Presence, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Presence, 0, len(t.stays[sceneID]))
	for _, p := range t.stays[sceneID] {
		cp := *p
		if p.LeftAt != nil {
			left := *p.LeftAt
			cp.LeftAt = &left
		}
		out = append(out, cp)
	}
	return out, nil
}
