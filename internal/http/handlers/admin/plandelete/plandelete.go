// Package plandelete реализует HTTP-обработчик удаления плана подписки.
// План с активными подписками удалить нельзя.
package plandelete

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/services/admin"
)

// Service описывает операцию удаления плана.
type Service interface {
	DeletePlan(ctx context.Context, id int64) error
}

// Handler обрабатывает HTTP-запросы удаления плана.
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
// @Summary Удаление плана подписки
// @Description Удаляет план. План с активными подписками удалить нельзя.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Идентификатор плана"
// @Success 200 {object} response.Response "План удалён"
// @Failure 400 {object} response.Response "Некорректный идентификатор"
// @Failure 404 {object} response.Response "План не найден"
// @Failure 409 {object} response.Response "У плана есть активные подписки"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/plans/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.plandelete"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("invalid plan id format", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid plan id"))
		return
	}

	if err := h.service.DeletePlan(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, admin.ErrPlanNotFound):
			log.Warn("plan not found", slog.Int64("plan_id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		case errors.Is(err, admin.ErrPlanInUse):
			log.Warn("plan has active subscriptions", slog.Int64("plan_id", id))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("plan has active subscriptions"))
		default:
			log.Error("failed to delete plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("plan deleted", slog.Int64("plan_id", id))
	render.JSON(w, r, response.OKWithMessage("plan deleted"))
}
