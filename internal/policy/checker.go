package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/playbypost/internal/witness"
)

// MetricConsistencyViolations counts rows the storage policy returned but the
// application predicate rejected.
const MetricConsistencyViolations = "visibility_consistency_violations_total"

// Checker re-applies witness.IsVisible to rows a store has already filtered.
type Checker struct {
	violations *prometheus.CounterVec
	logger     *slog.Logger
}

// NewChecker creates a checker. A nil logger uses slog.Default.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricConsistencyViolations,
				Help: "Rows returned by the storage visibility policy that the application predicate rejected",
			},
			[]string{"table"},
		),
		logger: logger,
	}
}

// Register registers the checker's collectors.
func (c *Checker) Register(reg prometheus.Registerer) error {
	return reg.Register(c.violations)
}

// Verify checks that every record the store returned for v is visible under
// the application predicate. ids are used only for reporting and must be
// parallel to records.
//
// Verify only sees what the store returned, so it catches rows the policy
// admits but the predicate rejects. Rows the policy wrongly omits pass
// unnoticed; that direction is covered by comparing the rendered policy with
// the predicate in tests.
func (c *Checker) Verify(ctx context.Context, table string, v witness.Viewer, ids []string, records []witness.Record) error {
	for i, r := range records {
		if witness.IsVisible(r, v) {
			continue
		}
		c.violations.WithLabelValues(table).Inc()
		c.logger.ErrorContext(ctx, "visibility policy disagreement",
			"table", table,
			"row_id", ids[i],
			"viewer_user", v.UserID,
			"viewer_role", string(v.Role),
			"viewer_character", v.CharacterID,
		)
		return witness.Consistency(fmt.Sprintf("storage returned %s row %s not visible to viewer", table, ids[i]))
	}
	return nil
}
