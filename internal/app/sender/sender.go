// Package sender собирает почтовый воркер: подключение к брокеру,
// SMTP-транспорт и потребителей очередей.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/subscriptionpro/subscription-pro/internal/config"
	"github.com/subscriptionpro/subscription-pro/internal/lib/rabbitmq"
	"github.com/subscriptionpro/subscription-pro/internal/lib/smtp"
	senderservice "github.com/subscriptionpro/subscription-pro/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(transport, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "emails.subscription_confirmed", a.senderService.SendSubscriptionConfirmation)
	if err != nil {
		a.logger.Error("failed to start subscription confirmation consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
