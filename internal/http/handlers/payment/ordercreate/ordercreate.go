// Package ordercreate реализует HTTP-обработчик создания заказа в платёжном
// шлюзе для покупки подписки.
package ordercreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/subscriptionpro/subscription-pro/internal/http/middlewarectx"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/paymentprovider"
	"github.com/subscriptionpro/subscription-pro/internal/services/payment"
)

// Request — структура входных данных для создания заказа.
type Request struct {
	PlanID int64 `json:"plan_id" validate:"required,gte=1"`
}

// Service описывает операцию создания заказа.
type Service interface {
	CreateOrder(ctx context.Context, userUID string, planID int64) (*paymentprovider.Order, error)
}

// Handler обрабатывает HTTP-запросы создания заказа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создание заказа на подписку
// @Description Создаёт заказ в платёжном шлюзе для выбранного плана. Доступно только при подтверждённой почте.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Идентификатор плана"
// @Success 200 {object} response.Response "Созданный заказ"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 404 {object} response.Response "План недоступен"
// @Failure 409 {object} response.Response "Активная подписка уже есть"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 502 {object} response.Response "Платёжный шлюз недоступен"
// @Router /payments/create-order [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.ordercreate"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userUID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrPlanUnavailable):
			log.Warn("plan unavailable", slog.Int64("plan_id", req.PlanID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan is not available"))
		case errors.Is(err, payment.ErrActiveSubscriptionExists):
			log.Warn("active subscription exists", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("active subscription already exists"))
		default:
			log.Error("failed to create order", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("failed to create payment order"))
		}
		return
	}

	log.Info("order created", slog.String("order_id", order.ID), slog.Int64("plan_id", req.PlanID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"order": order,
	}))
}
