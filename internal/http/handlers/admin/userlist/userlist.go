// Package userlist реализует HTTP-обработчик списка пользователей
// с их текущими подписками.
package userlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// Service описывает операцию чтения списка пользователей.
type Service interface {
	ListUsers(ctx context.Context) ([]*models.UserWithSubscription, error)
}

// Handler обрабатывает HTTP-запросы списка пользователей.
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
// @Summary Список пользователей
// @Description Возвращает всех пользователей вместе с их текущей подпиской.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Список пользователей"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 403 {object} response.Response "Требуется роль admin"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"users": users,
	}))
}
