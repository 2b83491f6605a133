// Package planlist реализует HTTP-обработчик полного списка планов,
// включая неактивные.
package planlist

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

// Service описывает операцию чтения всех планов.
type Service interface {
	ListAllPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
}

// Handler обрабатывает HTTP-запросы списка планов.
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
// @Summary Все планы подписки
// @Description Возвращает все планы, включая выключенные из каталога.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Список планов"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 403 {object} response.Response "Требуется роль admin"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.planlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	plans, err := h.service.ListAllPlans(r.Context())
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"plans": plans,
	}))
}
