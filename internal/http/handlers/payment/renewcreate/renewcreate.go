// Package renewcreate реализует HTTP-обработчик создания заказа на продление
// отменённой или истёкшей подписки.
package renewcreate

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
	"github.com/subscriptionpro/subscription-pro/internal/paymentprovider"
	"github.com/subscriptionpro/subscription-pro/internal/services/payment"
)

// Service описывает операцию создания заказа на продление.
type Service interface {
	CreateRenewalOrder(ctx context.Context, userUID string) (*paymentprovider.Order, error)
}

// Handler обрабатывает HTTP-запросы создания заказа на продление.
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
// @Summary Заказ на продление подписки
// @Description Создаёт заказ в платёжном шлюзе для продления последней отменённой или истёкшей подписки.
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Созданный заказ"
// @Failure 404 {object} response.Response "Продлевать нечего или план недоступен"
// @Failure 409 {object} response.Response "Активная подписка уже есть"
// @Failure 502 {object} response.Response "Платёжный шлюз недоступен"
// @Router /payments/renew-order [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.renewcreate"

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

	order, err := h.service.CreateRenewalOrder(r.Context(), userUID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNothingToRenew):
			log.Warn("no subscription to renew", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no subscription to renew"))
		case errors.Is(err, payment.ErrPlanUnavailable):
			log.Warn("plan is no longer available", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan is not available"))
		case errors.Is(err, payment.ErrActiveSubscriptionExists):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("active subscription already exists"))
		default:
			log.Error("failed to create renewal order", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("failed to create payment order"))
		}
		return
	}

	log.Info("renewal order created", slog.String("order_id", order.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"order": order,
	}))
}
