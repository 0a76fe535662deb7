package api

import (
	"net/http"
	"time"

	"github.com/onnwee/playbypost/internal/health"
)

// HealthResponse is the body of /health and /ready.
type HealthResponse struct {
	Status    string          `json:"status"`
	Checks    []health.Result `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// HealthHandlers provides liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]health.Checker
	timeout  time.Duration
}

// NewHealthHandlers creates health handlers. checkers may be empty in
// in-memory mode, where the service is always ready.
func NewHealthHandlers(checkers map[string]health.Checker, timeout time.Duration) *HealthHandlers {
	return &HealthHandlers{checkers: checkers, timeout: timeout}
}

// Health handles GET /health. The process is alive if it can answer.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    []health.Result{{Name: "runtime", OK: true}},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: 200 when every dependency answers, 503 otherwise.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	results, ready := health.CheckAll(r.Context(), h.checkers, h.timeout)
	if results == nil {
		results = []health.Result{}
	}
	resp := HealthResponse{
		Status:    "ready",
		Checks:    results,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if !ready {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r.Context(), status, resp)
}
