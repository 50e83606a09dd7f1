// Package auth issues and verifies admin sessions carried as HS256 JWTs.
// The ranking engine never sees a session; only the HTTP layer does.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/tierboard/internal/domain"
)

// Role is the privilege level of a session
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

var (
	// ErrInvalidToken is returned when the token is malformed or invalid.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = fmt.Errorf("%w: token has expired", domain.ErrUnauthorized)

	// ErrInvalidSignature is returned when the token signature is invalid.
	ErrInvalidSignature = fmt.Errorf("%w: invalid token signature", domain.ErrUnauthorized)

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
)

// Session is the caller identity decoded from a token
type Session struct {
	Role      Role      `json:"role"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasRole reports whether the session grants role. Admin implies every role.
func (s Session) HasRole(role Role) bool {
	return s.Role == role || s.Role == RoleAdmin
}

type sessionKey struct{}

// WithSession returns a context carrying s
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by the middleware, if any
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
