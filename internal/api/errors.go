// Package api provides the HTTP handlers of the play-by-post service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/middleware"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roll"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

// Error codes produced by the HTTP layer itself. Domain errors carry their
// own codes (witness.Error.Code).
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeInternal          = "internal_error"
	ErrCodeCampaignNotFound  = "campaign_not_found"
	ErrCodeSceneNotFound     = "scene_not_found"
	ErrCodeCharacterNotFound = "character_not_found"
	ErrCodePostNotFound      = "post_not_found"
	ErrCodeRollNotFound      = "roll_not_found"
	ErrCodeInvalidPhase      = "invalid_phase"
	ErrCodeInvalidKind       = "invalid_kind"
	ErrCodeUnauthorized      = "unauthorized"
)

// maxBodyBytes caps request bodies. A post holds at most post.MaxBlocks
// blocks of bounded text, well under this.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error envelope: {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the error envelope with status and records code for the
// request log line.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// notFound maps each package's not-found sentinel to its code.
var notFound = []struct {
	err  error
	code string
}{
	{campaign.ErrCampaignNotFound, ErrCodeCampaignNotFound},
	{scene.ErrSceneNotFound, ErrCodeSceneNotFound},
	{character.ErrCharacterNotFound, ErrCodeCharacterNotFound},
	{post.ErrPostNotFound, ErrCodePostNotFound},
	{roll.ErrRollNotFound, ErrCodeRollNotFound},
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	var werr *witness.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case witness.KindInvalidState:
			return http.StatusConflict, werr.Code
		case witness.KindAuthorization:
			return http.StatusForbidden, werr.Code
		case witness.KindValidation:
			return http.StatusBadRequest, werr.Code
		case witness.KindConsistency:
			return http.StatusInternalServerError, werr.Code
		}
	}
	for _, nf := range notFound {
		if errors.Is(err, nf.err) {
			return http.StatusNotFound, nf.code
		}
	}
	switch {
	case errors.Is(err, campaign.ErrInvalidPhase):
		return http.StatusBadRequest, ErrCodeInvalidPhase
	case errors.Is(err, character.ErrInvalidKind):
		return http.StatusBadRequest, ErrCodeInvalidKind
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// WriteDomainError writes err using StatusFor. Internal errors are logged and
// their text is not sent to the client; consistency violations keep a
// generic message too.
func WriteDomainError(w http.ResponseWriter, ctx context.Context, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "error", err, "code", code)
		message = "Internal server error"
	}
	WriteError(w, ctx, status, code, message)
}

// writeJSON writes v as a JSON response with status.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// decodeJSON reads a JSON body into dst, writing a 400 on failure. An empty
// body is accepted when allowEmpty is set and leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}
