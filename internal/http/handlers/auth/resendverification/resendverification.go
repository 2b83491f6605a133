// Package resendverification реализует HTTP-обработчик повторной отправки
// кода подтверждения почты.
package resendverification

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
	"github.com/subscriptionpro/subscription-pro/internal/services/auth"
)

// Service описывает операцию повторной отправки кода подтверждения.
type Service interface {
	ResendVerification(ctx context.Context, userUID string) error
}

// Handler обрабатывает HTTP-запросы повторной отправки кода.
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
// @Summary Повторная отправка кода подтверждения
// @Description Высылает новый код подтверждения почты. Для уже подтверждённой почты ничего не делает.
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Код отправлен"
// @Failure 401 {object} response.Response "Нет валидного access-токена"
// @Failure 502 {object} response.Response "Почтовый сервис недоступен"
// @Router /auth/resend-verification [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.resendverification"

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

	if err := h.service.ResendVerification(r.Context(), userUID); err != nil {
		if errors.Is(err, auth.ErrEmailDelivery) {
			log.Error("failed to send verification email", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("failed to send email"))
			return
		}
		log.Error("resend verification failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("verification code resent", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OKWithMessage("verification code sent"))
}
