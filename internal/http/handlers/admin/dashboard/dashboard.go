// Package dashboard реализует HTTP-обработчик сводной статистики для
// админской панели.
package dashboard

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

// Service описывает операцию сбора статистики.
type Service interface {
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

// Handler обрабатывает HTTP-запросы статистики.
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
// @Summary Статистика панели администратора
// @Description Возвращает счётчики, месячную выручку, рост пользователей и последние подписки.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Сводная статистика"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 403 {object} response.Response "Требуется роль admin"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/dashboard-stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.dashboard"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		log.Error("failed to collect dashboard stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(stats))
}
