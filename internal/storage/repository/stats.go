package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// CountUsers возвращает общее число пользователей.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	const op = "storage.CountUsers"

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CountActiveSubscriptions возвращает число подписок со статусом active.
// Записи с прошедшей датой окончания, ещё не переведённые в expired,
// учитываются как активные: панель отражает состояние хранилища.
func (s *Storage) CountActiveSubscriptions(ctx context.Context) (int, error) {
	const op = "storage.CountActiveSubscriptions"

	query := `SELECT count(*) FROM user_subscriptions WHERE status = 'active'`
	var count int
	if err := s.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CountActivePlans возвращает число видимых тарифных планов.
func (s *Storage) CountActivePlans(ctx context.Context) (int, error) {
	const op = "storage.CountActivePlans"

	query := `SELECT count(*) FROM subscription_plans WHERE is_active = TRUE`
	var count int
	if err := s.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// MonthlyRevenue возвращает месячную выручку по активным подпискам:
// месячные планы входят целиком, годовые делятся на двенадцать.
func (s *Storage) MonthlyRevenue(ctx context.Context) (float64, error) {
	const op = "storage.MonthlyRevenue"

	query := `SELECT COALESCE(SUM(
				  CASE WHEN p.duration = 'year' THEN p.price / 12 ELSE p.price END
			  ), 0)
			  FROM user_subscriptions s
			  JOIN subscription_plans p ON p.id = s.plan_id
			  WHERE s.status = 'active'`
	var revenue float64
	if err := s.DB.QueryRowContext(ctx, query).Scan(&revenue); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return revenue, nil
}

// UserGrowth возвращает число регистраций по дням за последние days дней,
// включая сегодняшний. Дни без регистраций присутствуют с нулём.
func (s *Storage) UserGrowth(ctx context.Context, days int) ([]models.DailyCount, error) {
	const op = "storage.UserGrowth"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT d.day, count(u.uid)
			  FROM generate_series(
			      current_date - ($1::int - 1) * interval '1 day',
			      current_date,
			      interval '1 day'
			  ) AS d(day)
			  LEFT JOIN users u ON date_trunc('day', u.created_at) = d.day
			  GROUP BY d.day
			  ORDER BY d.day`
	rows, err := s.DB.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.DailyCount
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, dc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SubscriptionBreakdown возвращает распределение подписок по статусам.
func (s *Storage) SubscriptionBreakdown(ctx context.Context) (models.SubscriptionBreakdown, error) {
	const op = "storage.SubscriptionBreakdown"

	query := `SELECT
			      count(*) FILTER (WHERE status = 'active'),
			      count(*) FILTER (WHERE status = 'cancelled'),
			      count(*) FILTER (WHERE status = 'expired')
			  FROM user_subscriptions`
	var b models.SubscriptionBreakdown
	if err := s.DB.QueryRowContext(ctx, query).Scan(&b.Active, &b.Cancelled, &b.Expired); err != nil {
		return models.SubscriptionBreakdown{}, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// RecentSubscriptions возвращает последние оформленные подписки
// для ленты активности, новые первыми.
func (s *Storage) RecentSubscriptions(ctx context.Context, limit int) ([]models.ActivityItem, error) {
	const op = "storage.RecentSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.name, p.name, s.created_at
			  FROM user_subscriptions s
			  JOIN users u ON u.uid = s.user_uid
			  LEFT JOIN subscription_plans p ON p.id = s.plan_id
			  ORDER BY s.created_at DESC
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ActivityItem
	for rows.Next() {
		var userName string
		var planName sql.NullString
		var item models.ActivityItem
		if err := rows.Scan(&userName, &planName, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !planName.Valid {
			planName.String = "a deleted plan"
		}
		item.Type = "subscription"
		item.Description = fmt.Sprintf("%s subscribed to %s", userName, planName.String)
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
