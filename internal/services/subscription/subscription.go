// Package subscription содержит бизнес-логику работы с подписками
// пользователя: текущая подписка, отмена, история и каталог планов.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/subscriptionpro/subscription-pro/internal/cache"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

// ErrNoActiveSubscription — у пользователя нет подписки, которую можно
// показать или отменить.
var ErrNoActiveSubscription = errors.New("no active subscription")

// plansCacheTTL — срок жизни каталога планов в кэше. Кэш дополнительно
// инвалидируется при любом изменении планов администратором.
const plansCacheTTL = 5 * time.Minute

// SubscriptionRepository описывает контракт для работы с подписками.
type SubscriptionRepository interface {
	GetCurrentSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error)
	MarkExpired(ctx context.Context, id int64) error
	CancelActiveSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error)
	ListUserSubscriptions(ctx context.Context, userUID string) ([]*models.UserSubscription, error)
}

// PlanRepository описывает контракт для чтения каталога планов.
type PlanRepository interface {
	ListPlans(ctx context.Context, onlyActive bool) ([]*models.SubscriptionPlan, error)
}

// Cache — кэш каталога планов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// SubscriptionService отвечает за операции пользователя со своей подпиской.
type SubscriptionService struct {
	subs  SubscriptionRepository
	plans PlanRepository
	cache Cache
	log   *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(subs SubscriptionRepository, plans PlanRepository,
	c Cache, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs:  subs,
		plans: plans,
		cache: c,
		log:   log,
	}
}

// GetMySubscription возвращает текущую подписку пользователя.
// Если активная подписка уже пережила свою дату окончания, она лениво
// переводится в expired прямо при чтении: фонового процесса истечения нет.
func (s *SubscriptionService) GetMySubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	const op = "subscription.GetMySubscription"

	sub, err := s.subs.GetCurrentSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sub.Status == models.StatusActive && sub.IsExpired() {
		if err := s.subs.MarkExpired(ctx, sub.ID); err != nil {
			// Перевод повторится при следующем чтении.
			s.log.Warn("failed to mark subscription expired", "subscription_id", sub.ID, sl.Err(err))
		}
		sub.Status = models.StatusExpired
	}
	return sub, nil
}

// Cancel отменяет активную подписку. Доступ сохраняется до конца
// оплаченного периода, повторная отмена дает ErrNoActiveSubscription.
func (s *SubscriptionService) Cancel(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	const op = "subscription.Cancel"

	sub, err := s.subs.CancelActiveSubscription(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// History возвращает все подписки пользователя, новые первыми.
func (s *SubscriptionService) History(ctx context.Context, userUID string) ([]*models.UserSubscription, error) {
	const op = "subscription.History"

	subs, err := s.subs.ListUserSubscriptions(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

// ListPlans возвращает активные планы каталога. Каталог читается из кэша,
// промах и ошибки кэша прозрачны: ответ собирается из базы, кэш пополняется.
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	const op = "subscription.ListPlans"

	var cached []*models.SubscriptionPlan
	found, err := s.cache.Get(cache.PlansKey, &cached)
	if err != nil {
		s.log.Warn("failed to read plans from cache", sl.Err(err))
	}
	if found {
		return cached, nil
	}

	plans, err := s.plans.ListPlans(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Set(cache.PlansKey, plans, plansCacheTTL); err != nil {
		s.log.Warn("failed to cache plans", sl.Err(err))
	}
	return plans, nil
}
