package notify

import (
	"context"
	"log/slog"
)

// Broadcaster sends one event to several users, best effort. Failures are
// logged and counted but never returned.
type Broadcaster struct {
	notifier Notifier
	metrics  *Metrics
}

// NewBroadcaster creates a broadcaster. metrics may be nil.
func NewBroadcaster(notifier Notifier, metrics *Metrics) *Broadcaster {
	return &Broadcaster{notifier: notifier, metrics: metrics}
}

// Broadcast notifies each distinct non-empty user in userIDs and returns how
// many notifications were accepted.
func (b *Broadcaster) Broadcast(ctx context.Context, userIDs []string, kind EventKind, payload map[string]string) int {
	if b == nil || b.notifier == nil {
		return 0
	}
	seen := make(map[string]bool, len(userIDs))
	sent := 0
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true

		if err := b.notifier.Notify(ctx, userID, kind, payload); err != nil {
			b.metrics.record(kind, StatusFailed)
			slog.WarnContext(ctx, "failed to send notification",
				"user_id", userID,
				"kind", string(kind),
				"error", err,
			)
			continue
		}
		b.metrics.record(kind, StatusSent)
		sent++
	}
	return sent
}
