// Package subscriptionpro собирает основное HTTP-приложение: хранилище,
// миграции, кэш, брокер, сервисы и маршруты.
package subscriptionpro

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/subscriptionpro/subscription-pro/internal/cache"
	"github.com/subscriptionpro/subscription-pro/internal/config"
	"github.com/subscriptionpro/subscription-pro/internal/lib/jwt"
	"github.com/subscriptionpro/subscription-pro/internal/lib/rabbitmq"
	"github.com/subscriptionpro/subscription-pro/internal/lib/smtp"
	"github.com/subscriptionpro/subscription-pro/internal/migrations"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/paymentprovider"
	adminservice "github.com/subscriptionpro/subscription-pro/internal/services/admin"
	authservice "github.com/subscriptionpro/subscription-pro/internal/services/auth"
	paymentservice "github.com/subscriptionpro/subscription-pro/internal/services/payment"
	senderservice "github.com/subscriptionpro/subscription-pro/internal/services/sender"
	subservice "github.com/subscriptionpro/subscription-pro/internal/services/subscription"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// emailPublisher публикует события подтверждённой подписки в exchange писем.
type emailPublisher struct {
	ch *amqp.Channel
}

func (p *emailPublisher) PublishSubscriptionConfirmed(event models.SubscriptionConfirmedEvent) error {
	return rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, "subscription.confirmed", event)
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	jwtMaker := jwt.NewMaker(cfg.JWTSecretKey, cfg.AccessTokenTTL)
	transport := smtp.NewTransport(cfg.SMTP, logger)
	mailer := senderservice.NewSenderService(transport, logger)
	gateway := paymentprovider.NewClient(cfg.Razorpay)

	authSvc := authservice.NewAuthService(db, db, mailer, jwtMaker, logger,
		cfg.RefreshTokenTTL, cfg.ClientURL)
	subSvc := subservice.NewSubscriptionService(db, db, cacheRedis, logger)
	paySvc := paymentservice.NewPaymentService(gateway, db, db, db,
		&emailPublisher{ch: ch}, logger,
		cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.Currency)
	adminSvc := adminservice.NewAdminService(db, db, db, db, cacheRedis, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, jwtMaker, db,
		authSvc, subSvc, paySvc, adminSvc)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", cerr))
		}
		a.db.DB.Close()
		return err
	}
}
