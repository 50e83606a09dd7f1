package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(&config.AuthConfig{
		Secret:     "test-secret-at-least-32-chars-long!!",
		Issuer:     "tierboard",
		SessionTTL: time.Hour,
	})
	require.NoError(t, err)
	return i
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)

	tests := []struct {
		name    string
		verify  func() (*Issuer, string)
		wantErr error
	}{
		{
			name: "valid",
			verify: func() (*Issuer, string) {
				token, _, err := issuer.Issue("ops", RoleAdmin, 0)
				require.NoError(t, err)
				return issuer, token
			},
		},
		{
			name: "expired",
			verify: func() (*Issuer, string) {
				token, _, err := issuer.Issue("ops", RoleAdmin, -time.Hour)
				require.NoError(t, err)
				return issuer, token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "wrong secret",
			verify: func() (*Issuer, string) {
				other, err := NewIssuer(&config.AuthConfig{Secret: "another-secret", Issuer: "tierboard", SessionTTL: time.Hour})
				require.NoError(t, err)
				token, _, err := other.Issue("ops", RoleAdmin, 0)
				require.NoError(t, err)
				return issuer, token
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name: "wrong issuer",
			verify: func() (*Issuer, string) {
				other, err := NewIssuer(&config.AuthConfig{Secret: "test-secret-at-least-32-chars-long!!", Issuer: "someone-else", SessionTTL: time.Hour})
				require.NoError(t, err)
				token, _, err := other.Issue("ops", RoleAdmin, 0)
				require.NoError(t, err)
				return issuer, token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "garbage",
			verify: func() (*Issuer, string) {
				return issuer, "not-a-token"
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, token := tt.verify()
			session, err := i.Verify(token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RoleAdmin, session.Role)
			assert.Equal(t, "ops", session.Subject)
			assert.Equal(t, time.Hour, session.ExpiresAt.Sub(session.IssuedAt))
			assert.False(t, session.Expired(time.Now()))
		})
	}
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(&config.AuthConfig{})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	issuer := newTestIssuer(t)
	adminToken, _, err := issuer.Issue("ops", RoleAdmin, 0)
	require.NoError(t, err)
	viewerToken, _, err := issuer.Issue("guest", RoleViewer, 0)
	require.NoError(t, err)

	var gotErr error
	writeError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		switch {
		case errors.Is(err, domain.ErrForbidden):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, found := FromContext(r.Context())
		assert.True(t, found)
		assert.Equal(t, RoleAdmin, s.Role)
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(issuer, writeError)(RequireRole(RoleAdmin, writeError)(ok))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantErr    error
	}{
		{"admin", "Bearer " + adminToken, http.StatusNoContent, nil},
		{"lowercase scheme", "bearer " + adminToken, http.StatusNoContent, nil},
		{"viewer", "Bearer " + viewerToken, http.StatusForbidden, domain.ErrForbidden},
		{"missing", "", http.StatusUnauthorized, ErrMissingToken},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr = nil
			req := httptest.NewRequest(http.MethodPost, "/api/v1/placements/batch", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, gotErr, tt.wantErr)
			}
		})
	}
}
