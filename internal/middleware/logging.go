// Package middleware provides the HTTP middleware chain of the API server:
// request IDs, tracing, metrics, structured logging, authentication,
// rate limiting and idempotent replays.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/onnwee/playbypost/internal/witness"
)

type userIDKey struct{}

type logSlotKey struct{}

// logSlot carries values set by inner handlers back to the logging
// middleware, which only holds the outer request context.
type logSlot struct {
	userID      string
	characterID string
	role        witness.Role
	errorCode   string
}

func slotFrom(ctx context.Context) *logSlot {
	slot, _ := ctx.Value(logSlotKey{}).(*logSlot)
	return slot
}

// SetUserID stores the authenticated user ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	if slot := slotFrom(ctx); slot != nil {
		slot.userID = userID
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the authenticated user ID, or "" when unauthenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RecordViewer notes the resolved viewer for the request log line.
func RecordViewer(ctx context.Context, v witness.Viewer) {
	if slot := slotFrom(ctx); slot != nil {
		slot.characterID = v.CharacterID
		slot.role = v.Role
	}
}

// SetErrorCode records an error code for the request log line.
func SetErrorCode(ctx context.Context, code string) context.Context {
	if slot := slotFrom(ctx); slot != nil {
		slot.errorCode = code
		return ctx
	}
	return context.WithValue(ctx, logSlotKey{}, &logSlot{errorCode: code})
}

// GetErrorCode returns the recorded error code, or "".
func GetErrorCode(ctx context.Context) string {
	if slot := slotFrom(ctx); slot != nil {
		return slot.errorCode
	}
	return ""
}

// responseWriter captures the status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader keeps the first status only, as net/http does.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// NewLogger returns a JSON logger at info level in production and a text
// logger at debug level otherwise.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logging writes one line per request with method, path, status, latency,
// request ID, the user and character acting, and the error code of failed
// requests. 5xx log at ERROR and 4xx at WARN.
//
// A panicking handler produces no line; recovery belongs outside this middleware.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slot := &logSlot{}
			r = r.WithContext(context.WithValue(r.Context(), logSlotKey{}, slot))
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			}
			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if slot.userID != "" {
				attrs = append(attrs, slog.String("user_id", slot.userID))
			}
			if slot.role != "" {
				attrs = append(attrs, slog.String("role", string(slot.role)))
			}
			if slot.characterID != "" {
				attrs = append(attrs, slog.String("character_id", slot.characterID))
			}
			if rw.statusCode >= 400 && slot.errorCode != "" {
				attrs = append(attrs, slog.String("error_code", slot.errorCode))
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
