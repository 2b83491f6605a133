// Package login реализует HTTP-обработчик входа пользователя.
//
// При успешном входе refresh-токен уходит в HttpOnly cookie, тело ответа
// содержит только пользователя и access-токен. Неизвестная почта и неверный
// пароль неразличимы для клиента.
package login

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

// Request — структура входных данных для входа.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Service описывает операцию входа сервиса аутентификации.
type Service interface {
	Login(ctx context.Context, email, rawPassword, ip string) (*models.User, *auth.TokenPair, error)
}

// Handler обрабатывает HTTP-запросы входа.
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
// @Summary Вход пользователя
// @Description Аутентифицирует пользователя по почте и паролю. Refresh-токен выставляется в HttpOnly cookie.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} response.Response "Успешный вход"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 401 {object} response.Response "Неверные учетные данные"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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

	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Warn("invalid credentials", slog.String("email", req.Email))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid email or password"))
			return
		}
		log.Error("login failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	cookie.SetRefreshToken(w, pair.RefreshToken.Token, h.refreshTTL, h.secure)

	log.Info("login success", slog.String("user_uid", user.UID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user":         user,
		"access_token": pair.AccessToken,
	}))
}
