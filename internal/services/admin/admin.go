// Package admin содержит бизнес-логику админской панели: сводную
// статистику, управление планами, пользователями и просмотр подписок.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/subscriptionpro/subscription-pro/internal/cache"
	"github.com/subscriptionpro/subscription-pro/internal/lib/sl"
	"github.com/subscriptionpro/subscription-pro/internal/models"
	"github.com/subscriptionpro/subscription-pro/internal/storage/repository"
)

// Ошибки уровня сервиса. Хендлеры сопоставляют их с HTTP-статусами.
var (
	// ErrPlanNameTaken — план с таким именем уже существует.
	ErrPlanNameTaken = errors.New("plan name already taken")
	// ErrPlanNotFound — план не найден.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanInUse — план нельзя удалить, пока на него есть активные подписки.
	ErrPlanInUse = errors.New("plan has active subscriptions")
	// ErrInvalidRole — роль не входит в допустимый набор.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
)

// Глубина гистограммы регистраций на панели.
const userGrowthDays = 7

// Число последних событий в ленте активности.
const recentActivityLimit = 10

// StatsRepository — агрегирующие запросы для панели.
type StatsRepository interface {
	CountUsers(ctx context.Context) (int, error)
	CountActiveSubscriptions(ctx context.Context) (int, error)
	CountActivePlans(ctx context.Context) (int, error)
	MonthlyRevenue(ctx context.Context) (float64, error)
	UserGrowth(ctx context.Context, days int) ([]models.DailyCount, error)
	SubscriptionBreakdown(ctx context.Context) (models.SubscriptionBreakdown, error)
	RecentSubscriptions(ctx context.Context, limit int) ([]models.ActivityItem, error)
}

// PlanRepository — админские операции над планами.
type PlanRepository interface {
	CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error)
	ListPlans(ctx context.Context, onlyActive bool) ([]*models.SubscriptionPlan, error)
	UpdatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error)
	DeletePlan(ctx context.Context, id int64) error
}

// UserRepository — админские операции над пользователями.
type UserRepository interface {
	ListUsersWithSubscription(ctx context.Context) ([]*models.UserWithSubscription, error)
	UpdateUserRole(ctx context.Context, userUID, role string) (*models.User, error)
}

// SubscriptionRepository — просмотр всех подписок.
type SubscriptionRepository interface {
	ListSubscriptions(ctx context.Context) ([]*models.UserSubscription, error)
}

// Cache — кэш каталога планов, инвалидируется при изменениях.
type Cache interface {
	Invalidate(key string) error
}

// AdminService отвечает за операции, доступные только роли admin.
type AdminService struct {
	stats StatsRepository
	plans PlanRepository
	users UserRepository
	subs  SubscriptionRepository
	cache Cache
	log   *slog.Logger
}

// NewAdminService создает новый экземпляр AdminService.
func NewAdminService(stats StatsRepository, plans PlanRepository, users UserRepository,
	subs SubscriptionRepository, c Cache, log *slog.Logger) *AdminService {
	return &AdminService{
		stats: stats,
		plans: plans,
		users: users,
		subs:  subs,
		cache: c,
		log:   log,
	}
}

// DashboardStats собирает сводную статистику панели. Значения считаются
// отдельными запросами, без общей транзакции.
func (s *AdminService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	const op = "admin.DashboardStats"

	totalUsers, err := s.stats.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	activeSubs, err := s.stats.CountActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	totalPlans, err := s.stats.CountActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	revenue, err := s.stats.MonthlyRevenue(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	growth, err := s.stats.UserGrowth(ctx, userGrowthDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	breakdown, err := s.stats.SubscriptionBreakdown(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	activity, err := s.stats.RecentSubscriptions(ctx, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.DashboardStats{
		TotalUsers:            totalUsers,
		ActiveSubscriptions:   activeSubs,
		TotalPlans:            totalPlans,
		MonthlyRevenue:        math.Round(revenue*100) / 100,
		UserGrowth:            growth,
		SubscriptionBreakdown: breakdown,
		RecentActivity:        activity,
	}, nil
}

// CreatePlan добавляет новый тарифный план и сбрасывает кэш каталога.
func (s *AdminService) CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	const op = "admin.CreatePlan"

	created, err := s.plans.CreatePlan(ctx, plan)
	if err != nil {
		if errors.Is(err, repository.ErrPlanExists) {
			return nil, ErrPlanNameTaken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlansCache()
	return created, nil
}

// ListAllPlans возвращает все планы, включая снятые с продажи.
func (s *AdminService) ListAllPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	const op = "admin.ListAllPlans"

	plans, err := s.plans.ListPlans(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// UpdatePlan обновляет план и сбрасывает кэш каталога.
func (s *AdminService) UpdatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	const op = "admin.UpdatePlan"

	updated, err := s.plans.UpdatePlan(ctx, plan)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPlanNotFound):
			return nil, ErrPlanNotFound
		case errors.Is(err, repository.ErrPlanExists):
			return nil, ErrPlanNameTaken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlansCache()
	return updated, nil
}

// DeletePlan удаляет план без активных подписок. План с активными
// подписками удалить нельзя: вместо удаления его деактивируют.
func (s *AdminService) DeletePlan(ctx context.Context, id int64) error {
	const op = "admin.DeletePlan"

	if err := s.plans.DeletePlan(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrPlanNotFound):
			return ErrPlanNotFound
		case errors.Is(err, repository.ErrPlanInUse):
			return ErrPlanInUse
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidatePlansCache()
	return nil
}

// ListUsers возвращает пользователей с их текущими подписками.
func (s *AdminService) ListUsers(ctx context.Context) ([]*models.UserWithSubscription, error) {
	const op = "admin.ListUsers"

	users, err := s.users.ListUsersWithSubscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// UpdateUserRole меняет роль пользователя. Допустимы только user и admin.
func (s *AdminService) UpdateUserRole(ctx context.Context, userUID, role string) (*models.User, error) {
	const op = "admin.UpdateUserRole"

	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, ErrInvalidRole
	}
	user, err := s.users.UpdateUserRole(ctx, userUID, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ListSubscriptions возвращает все подписки с данными пользователей и планов.
func (s *AdminService) ListSubscriptions(ctx context.Context) ([]*models.UserSubscription, error) {
	const op = "admin.ListSubscriptions"

	subs, err := s.subs.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

// invalidatePlansCache сбрасывает кэш каталога. Сбой кэша не фатален:
// запись доживёт максимум до конца своего TTL.
func (s *AdminService) invalidatePlansCache() {
	if err := s.cache.Invalidate(cache.PlansKey); err != nil {
		s.log.Warn("failed to invalidate plans cache", sl.Err(err))
	}
}
