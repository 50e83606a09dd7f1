package auth

import (
	"net/http"
	"strings"

	"github.com/tierboard/internal/domain"
)

// ErrorWriter renders an auth failure in the caller's response format
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware verifies bearer tokens and stores the session in the request
// context. Requests without a valid token are rejected.
func Middleware(issuer *Issuer, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, ErrMissingToken)
				return
			}
			session, err := issuer.Verify(token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireRole rejects sessions that do not grant role. It must run after
// Middleware.
func RequireRole(role Role, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := FromContext(r.Context())
			if !ok {
				writeError(w, r, ErrMissingToken)
				return
			}
			if !session.HasRole(role) {
				writeError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
