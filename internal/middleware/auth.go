package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/playbypost/internal/auth"
)

// TokenValidator resolves an access token to its user ID.
type TokenValidator interface {
	UserIDFromAccessToken(token string) (string, error)
}

// RequireAuth accepts "Authorization: Bearer <access token>" and stores the
// token subject with SetUserID. Anything else is rejected with 401.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			userID, err := tokens.UserIDFromAccessToken(strings.TrimSpace(token))
			if err != nil {
				code, message := "invalid_token", "Invalid bearer token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code, message = "token_expired", "Bearer token has expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, code, message)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
		})
	}
}
