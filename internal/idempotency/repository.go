package idempotency

import (
	"context"
	"sync"
	"time"
)

type scopedKey struct {
	userID string
	key    string
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[scopedKey]*Record
}

// NewInMemoryRepository creates a new in-memory idempotency key repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		keys: make(map[scopedKey]*Record),
	}
}

// Get retrieves the user's record for key.
func (r *InMemoryRepository) Get(_ context.Context, userID, key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[scopedKey{userID, key}]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := *record
	return &out, nil
}

// Store saves a new record.
func (r *InMemoryRepository) Store(_ context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := scopedKey{record.UserID, record.Key}
	if _, exists := r.keys[id]; exists {
		return ErrKeyExists
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.keys[id] = &stored
	return nil
}

// DeleteOlderThan removes records older than age.
func (r *InMemoryRepository) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var deleted int64
	for id, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, id)
			deleted++
		}
	}
	return deleted, nil
}
