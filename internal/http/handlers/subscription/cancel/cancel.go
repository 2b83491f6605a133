// Package cancel реализует HTTP-обработчик отмены активной подписки.
// Доступ сохраняется до конца оплаченного периода, повторная отмена даёт 404.
package cancel

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

// Service описывает операцию отмены подписки.
type Service interface {
	Cancel(ctx context.Context, userUID string) (*models.UserSubscription, error)
}

// Handler обрабатывает HTTP-запросы отмены подписки.
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
// @Summary Отмена подписки
// @Description Отменяет активную подписку. Доступ сохраняется до конца оплаченного периода.
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Подписка отменена"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 404 {object} response.Response "Активной подписки нет"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /subscriptions/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"

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

	sub, err := h.service.Cancel(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			log.Warn("no active subscription to cancel", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no active subscription"))
			return
		}
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("subscription cancelled", slog.String("user_uid", userUID), slog.Int64("subscription_id", sub.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": sub,
	}))
}
