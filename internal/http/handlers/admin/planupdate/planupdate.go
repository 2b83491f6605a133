// Package planupdate реализует HTTP-обработчик изменения плана подписки.
package planupdate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/admin"
)

// Request — структура входных данных для изменения плана.
type Request struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Price       float64  `json:"price" validate:"gte=0"`
	Duration    string   `json:"duration" validate:"required,oneof=month year"`
	Features    []string `json:"features"`
	IsActive    bool     `json:"is_active"`
	MaxUsers    *int     `json:"max_users"`
	TrialDays   int      `json:"trial_days" validate:"gte=0"`
}

// Service описывает операцию изменения плана.
type Service interface {
	UpdatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error)
}

// Handler обрабатывает HTTP-запросы изменения плана.
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
// @Summary Изменение плана подписки
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Идентификатор плана"
// @Param request body Request true "Новые данные плана"
// @Success 200 {object} response.Response "Обновлённый план"
// @Failure 400 {object} response.Response "Некорректный JSON или идентификатор"
// @Failure 404 {object} response.Response "План не найден"
// @Failure 409 {object} response.Response "Имя плана занято"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/plans/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.planupdate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("invalid plan id format", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid plan id"))
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

	plan, err := h.service.UpdatePlan(r.Context(), models.SubscriptionPlan{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Duration:    req.Duration,
		Features:    req.Features,
		IsActive:    req.IsActive,
		MaxUsers:    req.MaxUsers,
		TrialDays:   req.TrialDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrPlanNotFound):
			log.Warn("plan not found", slog.Int64("plan_id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		case errors.Is(err, admin.ErrPlanNameTaken):
			log.Warn("plan name already taken", slog.String("name", req.Name))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("plan name already taken"))
		default:
			log.Error("failed to update plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("plan updated", slog.Int64("plan_id", plan.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"plan": plan,
	}))
}
