package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

const planColumns = `id, name, description, price, duration, features,
	is_active, max_users, trial_days, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*models.SubscriptionPlan, error) {
	p := &models.SubscriptionPlan{}
	var (
		features []byte
		maxUsers sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Duration, &features,
		&p.IsActive, &maxUsers, &p.TrialDays, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, err
	}
	if maxUsers.Valid {
		n := int(maxUsers.Int64)
		p.MaxUsers = &n
	}
	return p, nil
}

// CreatePlan сохраняет новый тарифный план. Дубликат имени даёт ErrPlanExists.
func (s *Storage) CreatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	const op = "storage.CreatePlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	features, err := json.Marshal(plan.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscription_plans (name, description, price, duration, features, is_active, max_users, trial_days)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING ` + planColumns
	created, err := scanPlan(s.DB.QueryRowContext(ctx, query,
		plan.Name, plan.Description, plan.Price, plan.Duration, features,
		plan.IsActive, plan.MaxUsers, plan.TrialDays))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetPlan возвращает план по ID или ErrPlanNotFound.
func (s *Storage) GetPlan(ctx context.Context, id int64) (*models.SubscriptionPlan, error) {
	const op = "storage.GetPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ListPlans возвращает планы, упорядоченные по цене.
// При onlyActive=true скрытые планы не попадают в выборку.
func (s *Storage) ListPlans(ctx context.Context, onlyActive bool) ([]*models.SubscriptionPlan, error) {
	const op = "storage.ListPlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM subscription_plans`
	if onlyActive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY price`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdatePlan обновляет план целиком и возвращает обновлённую запись.
func (s *Storage) UpdatePlan(ctx context.Context, plan models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	const op = "storage.UpdatePlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	features, err := json.Marshal(plan.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE subscription_plans
			  SET name = $2, description = $3, price = $4, duration = $5,
			      features = $6, is_active = $7, max_users = $8, trial_days = $9
			  WHERE id = $1
			  RETURNING ` + planColumns
	updated, err := scanPlan(s.DB.QueryRowContext(ctx, query,
		plan.ID, plan.Name, plan.Description, plan.Price, plan.Duration,
		features, plan.IsActive, plan.MaxUsers, plan.TrialDays))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// DeletePlan удаляет план, на который не ссылается ни одна активная подписка.
// Проверка и удаление выполняются одним запросом, чтобы конкурентная покупка
// не успела вклиниться между ними. В отменённых и истёкших подписках внешний
// ключ ON DELETE SET NULL обнуляет plan_id, история остаётся.
func (s *Storage) DeletePlan(ctx context.Context, id int64) error {
	const op = "storage.DeletePlan"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM subscription_plans
			  WHERE id = $1
			    AND NOT EXISTS (
			        SELECT 1 FROM user_subscriptions
			        WHERE plan_id = $1 AND status = 'active'
			    )`
	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		// Либо плана нет, либо он занят активной подпиской.
		var exists bool
		checkQuery := `SELECT EXISTS (SELECT 1 FROM subscription_plans WHERE id = $1)`
		if err := s.DB.QueryRowContext(ctx, checkQuery, id).Scan(&exists); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if exists {
			return fmt.Errorf("%s: %w", op, ErrPlanInUse)
		}
		return fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	return nil
}
