package audit

import (
	"context"
	"log/slog"

	"github.com/onnwee/playbypost/internal/middleware"
)

// Record appends entry, taking the user and request IDs from ctx when the
// entry leaves them empty. Failures are logged, not returned. A nil repo is
// a no-op.
func Record(ctx context.Context, repo Repository, entry Entry) {
	if repo == nil {
		return
	}
	if entry.UserID == "" {
		entry.UserID = middleware.GetUserID(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetRequestID(ctx)
	}
	if _, err := repo.Log(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write audit log",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}
