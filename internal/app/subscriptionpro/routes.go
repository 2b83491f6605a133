// Package subscriptionpro предоставляет маршруты для основного приложения.
package subscriptionpro

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/subscriptionpro/subscription-pro/internal/config"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/dashboard"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/plancreate"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/plandelete"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/planlist"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/planupdate"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/subscriptionlist"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/userlist"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/admin/userrole"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/checkauth"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/forgotpassword"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/login"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/logout"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/refresh"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/register"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/resendverification"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/resetpassword"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/auth/verifyemail"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/health"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/payment/key"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/payment/ordercreate"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/payment/renewcreate"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/payment/renewverify"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/payment/verify"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/subscription/cancel"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/subscription/current"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/subscription/history"
	"github.com/subscriptionpro/subscription-pro/internal/http/handlers/subscription/plans"
	"github.com/subscriptionpro/subscription-pro/internal/http/middlewarectx"
	"github.com/subscriptionpro/subscription-pro/internal/lib/jwt"
	adminservice "github.com/subscriptionpro/subscription-pro/internal/services/admin"
	authservice "github.com/subscriptionpro/subscription-pro/internal/services/auth"
	paymentservice "github.com/subscriptionpro/subscription-pro/internal/services/payment"
	subservice "github.com/subscriptionpro/subscription-pro/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	jwtMaker jwt.Maker, users middlewarectx.UserProvider,
	authSvc *authservice.AuthService, subSvc *subservice.SubscriptionService,
	paySvc *paymentservice.PaymentService, adminSvc *adminservice.AdminService) {

	secure := cfg.Env == "prod"

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Общий лимитер для чувствительных открытых конечных точек.
	sensitive := middlewarectx.RateLimitMiddleware(rate.Limit(5), 10, logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.With(sensitive).Post("/auth/signup", register.New(logger, authSvc, cfg.RefreshTokenTTL, secure).ServeHTTP)
		r.With(sensitive).Post("/auth/login", login.New(logger, authSvc, cfg.RefreshTokenTTL, secure).ServeHTTP)
		r.Post("/auth/verify-email", verifyemail.New(logger, authSvc).ServeHTTP)
		r.With(sensitive).Post("/auth/forgot-password", forgotpassword.New(logger, authSvc).ServeHTTP)
		r.Post("/auth/reset-password/{token}", resetpassword.New(logger, authSvc).ServeHTTP)
		r.Post("/auth/refresh-token", refresh.New(logger, authSvc, cfg.RefreshTokenTTL, secure).ServeHTTP)
		r.Get("/subscriptions/plans", plans.New(logger, subSvc).ServeHTTP)
		r.Get("/payments/key", key.New(logger, paySvc).ServeHTTP)
		r.Get("/health", health.New(logger).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Post("/auth/logout", logout.New(logger, authSvc, secure).ServeHTTP)
			r.Get("/auth/check-auth", checkauth.New(logger, authSvc).ServeHTTP)
			r.Post("/auth/resend-verification", resendverification.New(logger, authSvc).ServeHTTP)
			r.Get("/subscriptions/my-subscription", current.New(logger, subSvc).ServeHTTP)
			r.Get("/subscriptions/history", history.New(logger, subSvc).ServeHTTP)
			r.Post("/subscriptions/cancel", cancel.New(logger, subSvc).ServeHTTP)

			// Платежи доступны только с подтверждённой почтой
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.VerifiedOnlyMiddleware(users, logger))
				r.Post("/payments/create-order", ordercreate.New(logger, paySvc).ServeHTTP)
				r.Post("/payments/verify-payment", verify.New(logger, paySvc).ServeHTTP)
				r.Post("/payments/renew-order", renewcreate.New(logger, paySvc).ServeHTTP)
				r.Post("/payments/verify-renewal", renewverify.New(logger, paySvc).ServeHTTP)
			})

			// Админская панель
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnlyMiddleware(logger))
				r.Get("/admin/dashboard-stats", dashboard.New(logger, adminSvc).ServeHTTP)
				r.Get("/admin/users", userlist.New(logger, adminSvc).ServeHTTP)
				r.Put("/admin/users/{id}/role", userrole.New(logger, adminSvc).ServeHTTP)
				r.Get("/admin/plans", planlist.New(logger, adminSvc).ServeHTTP)
				r.Post("/admin/plans", plancreate.New(logger, adminSvc).ServeHTTP)
				r.Put("/admin/plans/{id}", planupdate.New(logger, adminSvc).ServeHTTP)
				r.Delete("/admin/plans/{id}", plandelete.New(logger, adminSvc).ServeHTTP)
				r.Get("/admin/subscriptions", subscriptionlist.New(logger, adminSvc).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
