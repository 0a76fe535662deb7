package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores audit logs.
type Repository interface {
	// Log appends an entry and returns the stored log.
	Log(ctx context.Context, entry Entry) (*Log, error)

	// QueryByEntity returns logs for one entity, newest first.
	// A limit of 0 means no limit.
	QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Log, error)
}

// InMemoryRepository is an in-memory Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs []*Log // insertion order
}

// NewInMemoryRepository creates an empty audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func newLog(entry Entry) *Log {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	return &Log{
		ID:         uuid.New().String(),
		UserID:     entry.UserID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    outcome,
		Detail:     entry.Detail,
		RequestID:  entry.RequestID,
		// Postgres keeps microseconds; hashes must survive a round trip.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// Log appends an entry, chaining it to the previous one.
func (r *InMemoryRepository) Log(_ context.Context, entry Entry) (*Log, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}
	log := newLog(entry)

	r.mu.Lock()
	if n := len(r.logs); n > 0 {
		log.PreviousHash = r.logs[n-1].Hash()
	}
	r.logs = append(r.logs, log)
	r.mu.Unlock()

	out := *log
	return &out, nil
}

// QueryByEntity returns logs for one entity, newest first.
func (r *InMemoryRepository) QueryByEntity(_ context.Context, entityType, entityID string, limit int) ([]*Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Log
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if l.EntityType != entityType || l.EntityID != entityID {
			continue
		}
		out := *l
		results = append(results, &out)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// VerifyChain checks that each log's PreviousHash matches its predecessor.
// logs must be in insertion order. It returns the index of the first broken
// link, or -1.
func VerifyChain(logs []*Log) int {
	for i := 1; i < len(logs); i++ {
		if logs[i].PreviousHash != logs[i-1].Hash() {
			return i
		}
	}
	return -1
}
