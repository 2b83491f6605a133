// Package plancreate реализует HTTP-обработчик создания плана подписки.
package plancreate

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
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/services/admin"
)

// Request — структура входных данных для создания плана.
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

// Service описывает операцию создания плана.
type Service interface {
	CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error)
}

// Handler обрабатывает HTTP-запросы создания плана.
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
// @Summary Создание плана подписки
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Данные плана"
// @Success 201 {object} response.Response "Созданный план"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 409 {object} response.Response "Имя плана занято"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Внутренняя ошибка сервера"
// @Router /admin/plans [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.plancreate"

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

	plan, err := h.service.CreatePlan(r.Context(), models.SubscriptionPlan{
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
		if errors.Is(err, admin.ErrPlanNameTaken) {
			log.Warn("plan name already taken", slog.String("name", req.Name))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("plan name already taken"))
			return
		}
		log.Error("failed to create plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("plan created", slog.Int64("plan_id", plan.ID), slog.String("name", plan.Name))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"plan": plan,
	}))
}
