// Package key реализует HTTP-обработчик выдачи публичного ключа платёжного
// шлюза. Ключ нужен клиенту для инициализации платёжного виджета.
package key

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
)

// Service описывает доступ к публичному ключу шлюза.
type Service interface {
	Key() string
}

// Handler обрабатывает HTTP-запросы публичного ключа.
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
// @Summary Публичный ключ платёжного шлюза
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Response "Публичный ключ"
// @Router /payments/key [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{
		"key_id": h.service.Key(),
	}))
}
