package refresh

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/subscriptionpro/subscription-pro/internal/http/cookie"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/auth"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Refresh(ctx context.Context, refreshToken, ip string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken, ip)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRefreshHandler_ServeHTTP(t *testing.T) {
	pair := &auth.TokenPair{
		AccessToken: "new-access-token",
		RefreshToken: models.RefreshToken{
			Token:   "new-refresh-opaque",
			UserUID: "uid-1",
		},
	}

	tests := []struct {
		name           string
		cookieValue    string
		mockPair       *auth.TokenPair
		mockErr        error
		wantStatusCode int
		wantNewCookie  string
		wantCleared    bool
	}{
		{
			name:           "valid rotation rewrites cookie",
			cookieValue:    "old-refresh-opaque",
			mockPair:       pair,
			wantStatusCode: http.StatusOK,
			wantNewCookie:  "new-refresh-opaque",
		},
		{
			name:           "missing cookie",
			cookieValue:    "",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "revoked token clears cookie",
			cookieValue:    "stolen-token",
			mockErr:        auth.ErrInvalidToken,
			wantStatusCode: http.StatusUnauthorized,
			wantCleared:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcMock := new(ServiceMock)
			handler := New(newNoopLogger(), svcMock, 168*time.Hour, false)

			if tt.mockPair != nil || tt.mockErr != nil {
				svcMock.On("Refresh", mock.Anything, tt.cookieValue, mock.Anything).
					Return(tt.mockPair, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			if tt.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: cookie.RefreshTokenName, Value: tt.cookieValue})
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var refreshCookie *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == cookie.RefreshTokenName {
					refreshCookie = c
				}
			}

			if tt.wantNewCookie != "" {
				require.NotNil(t, refreshCookie)
				assert.Equal(t, tt.wantNewCookie, refreshCookie.Value)
				assert.True(t, refreshCookie.HttpOnly)

				var got map[string]any
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "new-access-token", data["access_token"])
			}

			if tt.wantCleared {
				require.NotNil(t, refreshCookie)
				assert.Empty(t, refreshCookie.Value)
				assert.Negative(t, refreshCookie.MaxAge)
			}

			svcMock.AssertExpectations(t)
		})
	}
}
