// Package userrole реализует HTTP-обработчик смены роли пользователя.
package userrole

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/admin"
)

// Request — структура входных данных с новой ролью.
type Request struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// Service описывает операцию смены роли.
type Service interface {
	UpdateUserRole(ctx context.Context, userUID, role string) (*models.User, error)
}

// Handler обрабатывает HTTP-запросы смены роли.
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
// @Summary Смена роли пользователя
// @Description Назначает пользователю роль user или admin.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "UID пользователя"
// @Param request body Request true "Новая роль"
// @Success 200 {object} response.Response "Обновлённый пользователь"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 404 {object} response.Response "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/role [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userrole"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID := chi.URLParam(r, "id")
	if userUID == "" {
		log.Warn("user id missing in path")
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
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

	user, err := h.service.UpdateUserRole(r.Context(), userUID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrUserNotFound):
			log.Warn("user not found", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, admin.ErrInvalidRole):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("invalid role"))
		default:
			log.Error("failed to update user role", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("user role updated", slog.String("user_uid", userUID), slog.String("role", req.Role))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user": user,
	}))
}
