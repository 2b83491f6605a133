// Package register реализует HTTP-обработчик регистрации пользователя.
//
// Обработчик декодирует и валидирует входные данные, делегирует регистрацию
// сервису аутентификации, выставляет HttpOnly cookie с refresh-токеном
// и возвращает пользователя вместе с access-токеном.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/subscriptionpro/subscription-pro/internal/http/cookie"
	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/auth"
)

// Request — структура входных данных для регистрации.
type Request struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Service описывает операцию регистрации сервиса аутентификации.
type Service interface {
	Register(ctx context.Context, name, email, rawPassword, ip string) (*models.User, *auth.TokenPair, error)
}

// Handler обрабатывает HTTP-запросы регистрации.
type Handler struct {
	log        *slog.Logger
	service    Service
	validate   *validator.Validate
	refreshTTL time.Duration
	secure     bool
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, refreshTTL time.Duration, secure bool) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		validate:   validator.New(),
		refreshTTL: refreshTTL,
		secure:     secure,
	}
}

// ServeHTTP godoc
// @Summary Регистрация пользователя
// @Description Создаёт пользователя, отправляет код подтверждения почты и открывает сессию.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Данные нового пользователя"
// @Success 201 {object} response.Response "Пользователь создан"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 409 {object} response.Response "Почта уже занята"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /auth/signup [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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

	user, pair, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			log.Warn("email already registered", slog.String("email", req.Email))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("email already registered"))
			return
		}
		log.Error("registration failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	cookie.SetRefreshToken(w, pair.RefreshToken.Token, h.refreshTTL, h.secure)

	log.Info("user registered", slog.String("user_uid", user.UID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user":         user,
		"access_token": pair.AccessToken,
	}))
}
