// Package renewverify реализует HTTP-обработчик подтверждения оплаты
// продления. Сроки подписки отсчитываются заново от момента оплаты.
package renewverify

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
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/payment"
)

// Request — данные платежа за продление.
type Request struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	PlanID    int64  `json:"plan_id" validate:"required,gte=1"`
}

// Service описывает операцию подтверждения оплаты продления.
type Service interface {
	VerifyRenewal(ctx context.Context, userUID string, req payment.VerifyRequest) (*models.UserSubscription, error)
}

// Handler обрабатывает HTTP-запросы подтверждения продления.
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
// @Summary Подтверждение оплаты продления
// @Description Проверяет подпись и статус платежа и продлевает подписку со сроками от момента оплаты.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Данные платежа"
// @Success 200 {object} response.Response "Продлённая подписка"
// @Failure 400 {object} response.Response "Подпись не сходится или платёж не захвачен"
// @Failure 404 {object} response.Response "Продлевать нечего или план недоступен"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /payments/verify-renewal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.renewverify"

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

	sub, err := h.service.VerifyRenewal(r.Context(), userUID, payment.VerifyRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		PlanID:    req.PlanID,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureMismatch):
			log.Warn("payment signature mismatch", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("payment signature mismatch"))
		case errors.Is(err, payment.ErrPaymentNotCaptured):
			log.Warn("payment is not captured", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("payment is not captured"))
		case errors.Is(err, payment.ErrNothingToRenew):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no subscription to renew"))
		case errors.Is(err, payment.ErrPlanUnavailable):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan is not available"))
		default:
			log.Error("renewal verification failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("renewal verified", slog.String("user_uid", userUID), slog.Int64("subscription_id", sub.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": sub,
	}))
}
