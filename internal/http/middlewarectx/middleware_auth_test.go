package middlewarectx_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscriptionpro/subscription-pro/internal/http/middlewarectx"
	"github.com/subscriptionpro/subscription-pro/internal/lib/jwt"
	"github.com/subscriptionpro/subscription-pro/internal/models"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	maker := jwt.NewMaker("test-secret", time.Minute)
	validToken, err := maker.GenerateToken("uid-1", models.RoleUser)
	require.NoError(t, err)

	expiredMaker := jwt.NewMaker("test-secret", -time.Minute)
	expiredToken, err := expiredMaker.GenerateToken("uid-1", models.RoleUser)
	require.NoError(t, err)

	otherSecret := jwt.NewMaker("other-secret", time.Minute)
	forgedToken, err := otherSecret.GenerateToken("uid-1", models.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUID    string
		wantRole   string
	}{
		{
			name:       "valid token passes user through",
			authHeader: "Bearer " + validToken,
			wantStatus: http.StatusOK,
			wantUID:    "uid-1",
			wantRole:   models.RoleUser,
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			authHeader: "Bearer " + expiredToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "token signed with another secret",
			authHeader: "Bearer " + forgedToken,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUID, gotRole string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUID, _ = middlewarectx.UserUIDFromContext(r.Context())
				gotRole, _ = middlewarectx.RoleFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			handler := middlewarectx.JWTMiddleware(maker, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/check-auth", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUID, gotUID)
				assert.Equal(t, tt.wantRole, gotRole)
			}
		})
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	maker := jwt.NewMaker("test-secret", time.Minute)

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "admin passes", role: models.RoleAdmin, wantStatus: http.StatusOK},
		{name: "user is rejected", role: models.RoleUser, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken("uid-1", tt.role)
			require.NoError(t, err)

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := middlewarectx.JWTMiddleware(maker, newNoopLogger())(
				middlewarectx.AdminOnlyMiddleware(newNoopLogger())(next))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dashboard-stats", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
