// Package payment содержит бизнес-логику оплаты подписок: создание заказа
// в платёжном шлюзе, проверку платежа и продление.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/paymentprovider"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

// Ошибки уровня сервиса. Хендлеры сопоставляют их с HTTP-статусами.
var (
	// ErrPlanUnavailable — план не найден или снят с продажи.
	ErrPlanUnavailable = errors.New("plan is not available")
	// ErrActiveSubscriptionExists — у пользователя уже есть активная подписка.
	ErrActiveSubscriptionExists = errors.New("active subscription already exists")
	// ErrSignatureMismatch — подпись платежа не сошлась. Подписка не создаётся.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrPaymentNotCaptured — шлюз не подтвердил списание средств.
	ErrPaymentNotCaptured = errors.New("payment is not captured")
	// ErrNothingToRenew — нет отменённой или истёкшей подписки для продления.
	ErrNothingToRenew = errors.New("no subscription to renew")
)

// Gateway — клиент платёжного шлюза.
type Gateway interface {
	CreateOrder(ctx context.Context, req paymentprovider.CreateOrderRequest) (*paymentprovider.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error)
}

// SubscriptionRepository описывает операции с подписками, нужные оплате.
type SubscriptionRepository interface {
	HasActiveSubscription(ctx context.Context, userUID string) (bool, error)
	CreateSubscription(ctx context.Context, sub models.UserSubscription) (*models.UserSubscription, error)
	GetRenewableSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error)
	RenewSubscription(ctx context.Context, sub models.UserSubscription) (*models.UserSubscription, error)
}

// PlanRepository — чтение тарифных планов.
type PlanRepository interface {
	GetPlan(ctx context.Context, id int64) (*models.SubscriptionPlan, error)
}

// UserRepository — чтение пользователя для письма-подтверждения.
type UserRepository interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

// EventPublisher публикует событие подтверждённой подписки в очередь писем.
type EventPublisher interface {
	PublishSubscriptionConfirmed(event models.SubscriptionConfirmedEvent) error
}

// VerifyRequest — данные платежа, присланные клиентом после оплаты.
// Подпись проверяется локально, статус платежа — только запросом к шлюзу.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	PlanID    int64
}

// PaymentService отвечает за заказы в шлюзе и активацию подписок по оплате.
type PaymentService struct {
	gateway   Gateway
	subs      SubscriptionRepository
	plans     PlanRepository
	users     UserRepository
	publisher EventPublisher
	log       *slog.Logger
	keyID     string
	keySecret string
	currency  string
}

// NewPaymentService создает новый экземпляр PaymentService.
func NewPaymentService(gateway Gateway, subs SubscriptionRepository, plans PlanRepository,
	users UserRepository, publisher EventPublisher, log *slog.Logger,
	keyID, keySecret, currency string) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		subs:      subs,
		plans:     plans,
		users:     users,
		publisher: publisher,
		log:       log,
		keyID:     keyID,
		keySecret: keySecret,
		currency:  currency,
	}
}

// Key возвращает публичный идентификатор ключа шлюза для клиентского виджета.
func (s *PaymentService) Key() string {
	return s.keyID
}

// CreateOrder создаёт заказ в шлюзе на оплату плана. Сумма заказа берётся
// из каталога на сервере, присланной клиентом цене сервис не доверяет.
func (s *PaymentService) CreateOrder(ctx context.Context, userUID string, planID int64) (*paymentprovider.Order, error) {
	const op = "payment.CreateOrder"

	plan, err := s.activePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	exists, err := s.subs.HasActiveSubscription(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return nil, ErrActiveSubscriptionExists
	}

	order, err := s.gateway.CreateOrder(ctx, paymentprovider.CreateOrderRequest{
		Amount:   amountMinorUnits(plan.Price),
		Currency: s.currency,
		Receipt:  fmt.Sprintf("rcpt_%d", time.Now().UnixMilli()),
		Notes: map[string]string{
			"plan_id":  fmt.Sprintf("%d", plan.ID),
			"user_uid": userUID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// VerifyPayment проверяет подпись и статус платежа и активирует подписку.
// До успешной проверки подписи никаких записей не создаётся. Статус платежа
// запрашивается у шлюза: принимается только captured.
func (s *PaymentService) VerifyPayment(ctx context.Context, userUID string, req VerifyRequest) (*models.UserSubscription, error) {
	const op = "payment.VerifyPayment"

	payment, err := s.verifyCapturedPayment(ctx, req)
	if err != nil {
		return nil, err
	}

	plan, err := s.activePlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub, err := s.subs.CreateSubscription(ctx, models.UserSubscription{
		UserUID:   userUID,
		PlanID:    plan.ID,
		Status:    models.StatusActive,
		StartDate: now,
		EndDate:   models.SubscriptionEnd(now, plan.Duration),
		AutoRenew: true,
		PaymentInfo: models.PaymentInfo{
			LastPaymentDate:   &now,
			LastPaymentAmount: plan.Price,
			PaymentMethod:     payment.Method,
			TransactionID:     payment.ID,
			OrderID:           payment.OrderID,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveSubExists) {
			return nil, ErrActiveSubscriptionExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publishConfirmation(ctx, userUID, plan.Name)
	return sub, nil
}

// CreateRenewalOrder создаёт заказ на продление последней отменённой или
// истёкшей подписки по текущей цене её плана.
func (s *PaymentService) CreateRenewalOrder(ctx context.Context, userUID string) (*paymentprovider.Order, error) {
	const op = "payment.CreateRenewalOrder"

	renewable, err := s.subs.GetRenewableSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubNotFound) {
			return nil, ErrNothingToRenew
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := s.activePlan(ctx, renewable.PlanID)
	if err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, paymentprovider.CreateOrderRequest{
		Amount:   amountMinorUnits(plan.Price),
		Currency: s.currency,
		Receipt:  fmt.Sprintf("rnw_%d", time.Now().UnixMilli()),
		Notes: map[string]string{
			"subscription_id": fmt.Sprintf("%d", renewable.ID),
			"user_uid":        userUID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// VerifyRenewal проверяет платёж продления и возвращает подписку в active
// с новыми датами от текущего момента.
func (s *PaymentService) VerifyRenewal(ctx context.Context, userUID string, req VerifyRequest) (*models.UserSubscription, error) {
	const op = "payment.VerifyRenewal"

	payment, err := s.verifyCapturedPayment(ctx, req)
	if err != nil {
		return nil, err
	}

	renewable, err := s.subs.GetRenewableSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubNotFound) {
			return nil, ErrNothingToRenew
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := s.activePlan(ctx, renewable.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	renewable.StartDate = now
	renewable.EndDate = models.SubscriptionEnd(now, plan.Duration)
	renewable.PaymentInfo = models.PaymentInfo{
		LastPaymentDate:   &now,
		LastPaymentAmount: plan.Price,
		PaymentMethod:     payment.Method,
		TransactionID:     payment.ID,
		OrderID:           payment.OrderID,
	}

	renewed, err := s.subs.RenewSubscription(ctx, *renewable)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSubNotFound):
			return nil, ErrNothingToRenew
		case errors.Is(err, repository.ErrActiveSubExists):
			return nil, ErrActiveSubscriptionExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publishConfirmation(ctx, userUID, plan.Name)
	return renewed, nil
}

// verifyCapturedPayment выполняет обе проверки платежа: локальную проверку
// подписи и запрос статуса у шлюза.
func (s *PaymentService) verifyCapturedPayment(ctx context.Context, req VerifyRequest) (*paymentprovider.Payment, error) {
	const op = "payment.verifyCapturedPayment"

	if !paymentprovider.VerifySignature(s.keySecret, req.OrderID, req.PaymentID, req.Signature) {
		return nil, ErrSignatureMismatch
	}

	payment, err := s.gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payment.Status != paymentprovider.PaymentStatusCaptured {
		return nil, ErrPaymentNotCaptured
	}
	return payment, nil
}

func (s *PaymentService) activePlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	const op = "payment.activePlan"

	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanUnavailable
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}
	return plan, nil
}

// publishConfirmation отправляет событие для письма-подтверждения.
// Отправка необязательная: подписка уже активирована, сбой очереди
// не откатывает оплату.
func (s *PaymentService) publishConfirmation(ctx context.Context, userUID, planName string) {
	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		s.log.Warn("failed to load user for confirmation email", "user_uid", userUID, sl.Err(err))
		return
	}
	event := models.SubscriptionConfirmedEvent{
		Email:    user.Email,
		Name:     user.Name,
		PlanName: planName,
	}
	if err := s.publisher.PublishSubscriptionConfirmed(event); err != nil {
		s.log.Warn("failed to publish confirmation event", "user_uid", userUID, sl.Err(err))
	}
}

// amountMinorUnits переводит цену плана в минимальные единицы валюты.
func amountMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
