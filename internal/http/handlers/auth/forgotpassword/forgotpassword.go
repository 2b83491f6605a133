// Package forgotpassword реализует HTTP-обработчик запроса сброса пароля.
//
// Ответ для существующей и несуществующей почты одинаков: обработчик не даёт
// перебирать зарегистрированные адреса.
package forgotpassword

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/services/auth"
)

// Request — структура входных данных с почтой для сброса пароля.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Service описывает операцию запроса сброса пароля.
type Service interface {
	ForgotPassword(ctx context.Context, email string) error
}

// Handler обрабатывает HTTP-запросы сброса пароля.
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
// @Summary Запрос сброса пароля
// @Description Отправляет письмо со ссылкой сброса, если почта зарегистрирована. Ответ не раскрывает существование адреса.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Почта пользователя"
// @Success 200 {object} response.Response "Письмо отправлено, если адрес существует"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 502 {object} response.Response "Почтовый сервис недоступен"
// @Router /auth/forgot-password [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.forgotpassword"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		if errors.Is(err, auth.ErrEmailDelivery) {
			log.Error("failed to send reset email", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("failed to send email"))
			return
		}
		log.Error("forgot password failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("reset email requested")
	render.JSON(w, r, response.OKWithMessage("if the email exists, a reset link has been sent"))
}
