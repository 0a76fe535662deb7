package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list the notification service consumes.
const DefaultQueue = "playbypost:notifications"

var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// RedisNotifier pushes CBOR-encoded events onto a Redis list.
type RedisNotifier struct {
	client *redis.Client
	queue  string
	now    func() time.Time
}

// NewRedisNotifier creates a notifier pushing to queue. An empty queue uses
// DefaultQueue.
func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisNotifier{client: client, queue: queue, now: time.Now}
}

// Notify enqueues the event.
func (n *RedisNotifier) Notify(ctx context.Context, userID string, kind EventKind, payload map[string]string) error {
	data, err := encMode.Marshal(Event{
		UserID:     userID,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.client.RPush(ctx, n.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// DecodeEvent decodes one queue entry.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &e, nil
}
