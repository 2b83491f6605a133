// Package current реализует HTTP-обработчик чтения текущей подписки
// пользователя. Истёкшая по времени активная подписка переводится
// в expired лениво, прямо при этом чтении.
package current

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/middlewarectx"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/subscription"
)

// Service описывает операцию чтения текущей подписки.
type Service interface {
	GetMySubscription(ctx context.Context, userUID string) (*models.UserSubscription, error)
}

// Handler обрабатывает HTTP-запросы текущей подписки.
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
// @Summary Текущая подписка
// @Description Возвращает текущую подписку пользователя с данными плана.
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Текущая подписка"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 404 {object} response.Response "Подписки нет"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /subscriptions/my-subscription [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.current"

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

	sub, err := h.service.GetMySubscription(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no subscription found"))
			return
		}
		log.Error("failed to load subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": sub,
	}))
}
