// Package logout реализует HTTP-обработчик выхода пользователя.
package logout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/cookie"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
)

// Service описывает операцию выхода сервиса аутентификации.
type Service interface {
	Logout(ctx context.Context, refreshToken, ip string) error
}

// Handler обрабатывает HTTP-запросы выхода.
type Handler struct {
	log     *slog.Logger
	service Service
	secure  bool
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, secure bool) *Handler {
	return &Handler{
		log:     log,
		service: service,
		secure:  secure,
	}
}

// ServeHTTP godoc
// @Summary Выход пользователя
// @Description Отзывает refresh-токен из cookie и стирает cookie. Выход идемпотентен.
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Сессия завершена"
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	// Cookie стирается в любом случае: повторный выход или уже отозванный
	// токен не должны мешать клиенту завершить сессию.
	if token, ok := cookie.RefreshToken(r); ok {
		if err := h.service.Logout(r.Context(), token, r.RemoteAddr); err != nil {
			log.Warn("failed to revoke refresh token", sl.Err(err))
		}
	}
	cookie.ClearRefreshToken(w, h.secure)

	log.Info("logout success")
	render.JSON(w, r, response.OKWithMessage("logged out"))
}
