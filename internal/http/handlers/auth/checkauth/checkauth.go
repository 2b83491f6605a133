// Package checkauth реализует HTTP-обработчик проверки текущей сессии.
package checkauth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/middlewarectx"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// Service описывает операцию проверки сессии сервиса аутентификации.
type Service interface {
	CheckAuth(ctx context.Context, userUID string) (*models.User, error)
}

// Handler обрабатывает HTTP-запросы проверки сессии.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверка сессии
// @Description Возвращает пользователя по access-токену. Клиент использует ответ при загрузке приложения.
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Текущий пользователь"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /auth/check-auth [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.checkauth"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	user, err := h.service.CheckAuth(r.Context(), userUID)
	if err != nil {
		log.Error("failed to load current user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"user": user,
	}))
}
