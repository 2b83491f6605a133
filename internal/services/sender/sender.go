// Package sender содержит логику отправки писем: подтверждение почты,
// сброс пароля и письмо об активации подписки из очереди.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/lib/smtp"
	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// SenderService собирает и отправляет письма через SMTP-транспорт.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendVerificationEmail отправляет код подтверждения почты.
// Вызывается синхронно при регистрации и повторном запросе кода.
func (s *SenderService) SendVerificationEmail(email, name, code string) error {
	subject := "Подтверждение почты"
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nВаш код подтверждения почты: %s.\n\nКод действует 24 часа.",
		name, code)

	return s.sendEmail([]string{email}, subject, bodyText)
}

// SendPasswordResetEmail отправляет ссылку для сброса пароля.
func (s *SenderService) SendPasswordResetEmail(email, name, link string) error {
	subject := "Сброс пароля"
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nДля смены пароля перейдите по ссылке: %s\n\nСсылка действует 30 минут. Если вы не запрашивали сброс, просто проигнорируйте это письмо.",
		name, link)

	return s.sendEmail([]string{email}, subject, bodyText)
}

// SendSubscriptionConfirmation отправляет письмо об активации подписки.
// Аргумент — тело сообщения из очереди.
func (s *SenderService) SendSubscriptionConfirmation(body []byte) error {
	var event models.SubscriptionConfirmedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Подписка активирована"
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nВаша подписка на план %s активирована. Спасибо, что вы с нами!",
		event.Name, event.PlanName)

	return s.sendEmail([]string{event.Email}, subject, bodyText)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetFrom(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetFrom()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetFrom(), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to, "subject", subject)
	return nil
}
