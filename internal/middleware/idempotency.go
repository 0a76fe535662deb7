package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/playbypost/internal/idempotency"
)

// IdempotencyKeyHeader is the request header carrying the idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader marks a replayed response.
const IdempotentReplayHeader = "Idempotent-Replayed"

type captureWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// Idempotency replays the first 2xx response stored for the caller's
// Idempotency-Key on this route. Keys are scoped per user, so it must run
// after RequireAuth. Requests without the header pass through untouched;
// reusing a key on a different route is rejected with 422. Lookup and store
// failures degrade to normal processing.
func Idempotency(repo idempotency.Repository, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			userID := GetUserID(r.Context())
			if key == "" || userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				code := "invalid_idempotency_key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					code = "idempotency_key_too_long"
				}
				writeError(w, r, http.StatusBadRequest, code, err.Error())
				return
			}

			ctx := r.Context()
			route := r.Method + " " + r.URL.Path
			existing, err := repo.Get(ctx, userID, key)
			switch {
			case err == nil:
				if existing.Route != route {
					writeError(w, r, http.StatusUnprocessableEntity, "idempotency_key_reused",
						"Idempotency-Key was already used for a different request")
					return
				}
				slog.InfoContext(ctx, "replaying idempotent response", "key", key, "status", existing.ResponseStatusCode)
				if metrics != nil {
					metrics.IncIdempotentReplays()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.ResponseStatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			cw := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(cw, r)
			if cw.statusCode < 200 || cw.statusCode >= 300 {
				return
			}

			body := cw.body.String()
			record := &idempotency.Record{
				UserID:             userID,
				Key:                key,
				Method:             r.Method,
				Route:              route,
				ResponseHash:       idempotency.ComputeResponseHash(body),
				Status:             idempotency.StatusCompleted,
				ResponseBody:       body,
				ResponseStatusCode: cw.statusCode,
			}
			if err := repo.Store(ctx, record); err != nil {
				slog.WarnContext(ctx, "failed to store idempotent response", "key", key, "error", err)
			}
		})
	}
}
