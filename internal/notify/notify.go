// Package notify hands events to the notification service. Delivery and
// digesting happen downstream; this package only enqueues.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// EventKind names what happened.
type EventKind string

const (
	// EventPostUnhidden tells a user that a post became visible to one of
	// their characters.
	EventPostUnhidden EventKind = "post_unhidden"
	// EventRollResolved tells a user that a roll of their character was resolved.
	EventRollResolved EventKind = "roll_resolved"
)

// Event is the envelope handed to the notification service.
type Event struct {
	UserID     string            `cbor:"user_id" json:"user_id"`
	Kind       EventKind         `cbor:"kind" json:"kind"`
	Payload    map[string]string `cbor:"payload,omitempty" json:"payload,omitempty"`
	OccurredAt time.Time         `cbor:"occurred_at" json:"occurred_at"`
}

// Notifier enqueues a notification for one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind EventKind, payload map[string]string) error
}

// LogNotifier writes notifications to the log. Used in development when no
// queue is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, userID string, kind EventKind, payload map[string]string) error {
	attrs := []any{"user_id", userID, "kind", string(kind)}
	for k, v := range payload {
		attrs = append(attrs, k, v)
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
