package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/subscriptionpro/subscription-pro/internal/http/response"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// UserProvider отдаёт пользователя по UID для проверки подтверждения почты.
type UserProvider interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

// VerifiedOnlyMiddleware пропускает дальше только пользователей
// с подтверждённой почтой. Нужен платёжным операциям: без подтверждения
// почты покупка недоступна. Ставится после JWTMiddleware.
func VerifiedOnlyMiddleware(users UserProvider, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userUID, ok := UserUIDFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			user, err := users.GetUserByUID(r.Context(), userUID)
			if err != nil {
				log.Error("failed to load user", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal server error"))
				return
			}
			if !user.IsVerified {
				log.Warn("unverified email, payment access denied", slog.String("user_uid", userUID))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("email is not verified"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
