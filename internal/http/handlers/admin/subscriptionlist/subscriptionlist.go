// Package subscriptionlist реализует HTTP-обработчик списка всех подписок
// с данными владельцев и планов.
package subscriptionlist

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

// Service описывает операцию чтения всех подписок.
type Service interface {
	ListSubscriptions(ctx context.Context) ([]*models.UserSubscription, error)
}

// Handler обрабатывает HTTP-запросы списка подписок.
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
// @Summary Все подписки
// @Description Возвращает все подписки с именами и почтой владельцев.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Список подписок"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 403 {object} response.Response "Требуется роль admin"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/subscriptions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.subscriptionlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subs, err := h.service.ListSubscriptions(r.Context())
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscriptions": subs,
	}))
}
