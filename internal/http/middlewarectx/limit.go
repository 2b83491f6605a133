package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
)

// RateLimitMiddleware ограничивает частоту запросов общим лимитером.
// Ставится на чувствительные открытые маршруты: вход, регистрацию,
// запрос сброса пароля.
func RateLimitMiddleware(limit rate.Limit, burst int, log *slog.Logger) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("too many requests", slog.String("path", r.URL.Path))
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
