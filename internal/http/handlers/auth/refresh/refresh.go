// Package refresh реализует HTTP-обработчик ротации refresh-токена.
//
// Токен принимается только из HttpOnly cookie и никогда не читается из тела
// запроса. Старый токен одноразовый: после успешной ротации cookie
// перезаписывается новым токеном, повторное использование старого даёт 401.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/cookie"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/services/auth"
)

// Service описывает операцию ротации сервиса аутентификации.
type Service interface {
	Refresh(ctx context.Context, refreshToken, ip string) (*auth.TokenPair, error)
}

// Handler обрабатывает HTTP-запросы ротации refresh-токена.
type Handler struct {
	log        *slog.Logger
	service    Service
	refreshTTL time.Duration
	secure     bool
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, refreshTTL time.Duration, secure bool) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		refreshTTL: refreshTTL,
		secure:     secure,
	}
}

// ServeHTTP godoc
// @Summary Ротация refresh-токена
// @Description Меняет refresh-токен из cookie на новую пару токенов. Старый токен отзывается.
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response "Новый access-токен"
// @Failure 401 {object} response.Response "Токен отсутствует, отозван или истёк"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /auth/refresh-token [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.refresh"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token, ok := cookie.RefreshToken(r)
	if !ok {
		log.Warn("refresh token cookie missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("refresh token missing"))
		return
	}

	pair, err := h.service.Refresh(r.Context(), token, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			log.Warn("refresh token rejected")
			cookie.ClearRefreshToken(w, h.secure)
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid or expired token"))
			return
		}
		log.Error("token rotation failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	cookie.SetRefreshToken(w, pair.RefreshToken.Token, h.refreshTTL, h.secure)

	log.Info("refresh token rotated", slog.String("user_uid", pair.RefreshToken.UserUID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"access_token": pair.AccessToken,
	}))
}
