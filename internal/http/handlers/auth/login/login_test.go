package login

import (
	"bytes"
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

func (m *ServiceMock) Login(ctx context.Context, email, rawPassword, ip string) (*models.User, *auth.TokenPair, error) {
	args := m.Called(ctx, email, rawPassword, ip)
	user, _ := args.Get(0).(*models.User)
	pair, _ := args.Get(1).(*auth.TokenPair)
	return user, pair, args.Error(2)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestLoginHandler_ServeHTTP(t *testing.T) {
	user := &models.User{UID: "uid-1", Name: "Alice", Email: "alice@example.com", Role: models.RoleUser}
	pair := &auth.TokenPair{
		AccessToken: "access-token",
		RefreshToken: models.RefreshToken{
			Token:   "refresh-opaque",
			UserUID: "uid-1",
		},
	}

	tests := []struct {
		name           string
		requestBody    any
		mockUser       *models.User
		mockPair       *auth.TokenPair
		mockErr        error
		wantStatusCode int
		wantCookie     bool
		wantMessage    string
	}{
		{
			name:           "valid login sets refresh cookie",
			requestBody:    Request{Email: "alice@example.com", Password: "password123"},
			mockUser:       user,
			mockPair:       pair,
			wantStatusCode: http.StatusOK,
			wantCookie:     true,
		},
		{
			name:           "invalid credentials",
			requestBody:    Request{Email: "alice@example.com", Password: "wrongpass"},
			mockErr:        auth.ErrInvalidCredentials,
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "invalid email or password",
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantMessage:    "invalid request body",
		},
		{
			name:           "validation error - missing password",
			requestBody:    Request{Email: "alice@example.com"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantMessage:    "field Password is a required field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcMock := new(ServiceMock)
			handler := New(newNoopLogger(), svcMock, 168*time.Hour, false)

			if tt.mockUser != nil || tt.mockErr != nil {
				req := tt.requestBody.(Request)
				svcMock.On("Login", mock.Anything, req.Email, req.Password, mock.Anything).
					Return(tt.mockUser, tt.mockPair, tt.mockErr).Once()
			}

			var bodyBytes []byte
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				var err error
				bodyBytes, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			respBody := rec.Body.String()
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(respBody), &got))

			if tt.wantMessage != "" {
				assert.Equal(t, false, got["success"])
				assert.Equal(t, tt.wantMessage, got["message"])
			}

			var refreshCookie *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == cookie.RefreshTokenName {
					refreshCookie = c
				}
			}

			if tt.wantCookie {
				require.NotNil(t, refreshCookie)
				assert.Equal(t, "refresh-opaque", refreshCookie.Value)
				assert.True(t, refreshCookie.HttpOnly)
				assert.Equal(t, "/", refreshCookie.Path)

				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "access-token", data["access_token"])
				// Refresh-токен не должен попадать в тело ответа.
				assert.NotContains(t, respBody, "refresh-opaque")
			} else {
				assert.Nil(t, refreshCookie)
			}

			svcMock.AssertExpectations(t)
		})
	}
}
