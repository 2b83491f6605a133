package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

const subscriptionColumns = `s.id, s.user_uid, s.plan_id, s.status, s.start_date, s.end_date,
	s.cancelled_at, s.auto_renew, s.last_payment_date, s.last_payment_amount,
	s.payment_method, s.transaction_id, s.order_id, s.created_at`

// insertedSubscriptionColumns повторяет subscriptionColumns без алиаса
// для RETURNING после INSERT.
const insertedSubscriptionColumns = `id, user_uid, plan_id, status, start_date, end_date,
	cancelled_at, auto_renew, last_payment_date, last_payment_amount,
	payment_method, transaction_id, order_id, created_at`

// planJoinColumns дублирует planColumns с алиасом p для JOIN-выборок.
const planJoinColumns = `p.id, p.name, p.description, p.price, p.duration, p.features,
	p.is_active, p.max_users, p.trial_days, p.created_at`

func scanSubscription(row interface{ Scan(...any) error }) (*models.UserSubscription, error) {
	sub := &models.UserSubscription{}
	var (
		planID                                sql.NullInt64
		cancelledAt, lastPaymentDate          sql.NullTime
		lastPaymentAmount                     sql.NullFloat64
		paymentMethod, transactionID, orderID sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.UserUID, &planID, &sub.Status, &sub.StartDate, &sub.EndDate,
		&cancelledAt, &sub.AutoRenew, &lastPaymentDate, &lastPaymentAmount,
		&paymentMethod, &transactionID, &orderID, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.PlanID = planID.Int64
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	if lastPaymentDate.Valid {
		sub.PaymentInfo.LastPaymentDate = &lastPaymentDate.Time
	}
	sub.PaymentInfo.LastPaymentAmount = lastPaymentAmount.Float64
	sub.PaymentInfo.PaymentMethod = paymentMethod.String
	sub.PaymentInfo.TransactionID = transactionID.String
	sub.PaymentInfo.OrderID = orderID.String
	return sub, nil
}

// scanSubscriptionWithPlan читает подписку вместе с планом из LEFT JOIN-выборки.
// План может быть удалён: тогда plan_id обнулён внешним ключом, колонки плана
// приходят NULL и Plan остаётся nil.
func scanSubscriptionWithPlan(row interface{ Scan(...any) error }) (*models.UserSubscription, error) {
	sub := &models.UserSubscription{}
	var (
		planID                                sql.NullInt64
		cancelledAt, lastPaymentDate          sql.NullTime
		lastPaymentAmount                     sql.NullFloat64
		paymentMethod, transactionID, orderID sql.NullString
		pID, maxUsers, trialDays              sql.NullInt64
		pName, pDescription, pDuration        sql.NullString
		pPrice                                sql.NullFloat64
		pIsActive                             sql.NullBool
		pCreatedAt                            sql.NullTime
		features                              []byte
	)
	if err := row.Scan(&sub.ID, &sub.UserUID, &planID, &sub.Status, &sub.StartDate, &sub.EndDate,
		&cancelledAt, &sub.AutoRenew, &lastPaymentDate, &lastPaymentAmount,
		&paymentMethod, &transactionID, &orderID, &sub.CreatedAt,
		&pID, &pName, &pDescription, &pPrice, &pDuration, &features,
		&pIsActive, &maxUsers, &trialDays, &pCreatedAt); err != nil {
		return nil, err
	}
	sub.PlanID = planID.Int64
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	if lastPaymentDate.Valid {
		sub.PaymentInfo.LastPaymentDate = &lastPaymentDate.Time
	}
	sub.PaymentInfo.LastPaymentAmount = lastPaymentAmount.Float64
	sub.PaymentInfo.PaymentMethod = paymentMethod.String
	sub.PaymentInfo.TransactionID = transactionID.String
	sub.PaymentInfo.OrderID = orderID.String
	if !pID.Valid {
		return sub, nil
	}
	p := &models.SubscriptionPlan{
		ID:          pID.Int64,
		Name:        pName.String,
		Description: pDescription.String,
		Price:       pPrice.Float64,
		Duration:    pDuration.String,
		IsActive:    pIsActive.Bool,
		TrialDays:   int(trialDays.Int64),
		CreatedAt:   pCreatedAt.Time,
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, err
	}
	if maxUsers.Valid {
		n := int(maxUsers.Int64)
		p.MaxUsers = &n
	}
	sub.Plan = p
	return sub, nil
}

// CreateSubscription вставляет новую активную подписку.
// Частичный уникальный индекс (user_uid WHERE status='active') гарантирует
// не более одной активной подписки на пользователя: конкурентная вставка
// получает ErrActiveSubExists, а не вторую активную запись.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.UserSubscription) (*models.UserSubscription, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscriptions
			      (user_uid, plan_id, status, start_date, end_date, auto_renew,
			       last_payment_date, last_payment_amount, payment_method, transaction_id, order_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  RETURNING ` + insertedSubscriptionColumns
	created, err := scanSubscription(s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.PlanID, sub.Status, sub.StartDate, sub.EndDate, sub.AutoRenew,
		sub.PaymentInfo.LastPaymentDate, sub.PaymentInfo.LastPaymentAmount,
		sub.PaymentInfo.PaymentMethod, sub.PaymentInfo.TransactionID, sub.PaymentInfo.OrderID))
	if err != nil {
		if isUniqueViolation(err, "user_subscriptions_one_active") {
			return nil, fmt.Errorf("%s: %w", op, ErrActiveSubExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// HasActiveSubscription сообщает, есть ли у пользователя активная подписка.
// Это предварительная проверка для createOrder; окончательную защиту даёт
// уникальный индекс при вставке.
func (s *Storage) HasActiveSubscription(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.HasActiveSubscription"

	query := `SELECT EXISTS (
			      SELECT 1 FROM user_subscriptions WHERE user_uid = $1 AND status = 'active'
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetCurrentSubscription возвращает последнюю подписку пользователя со статусом
// active или cancelled вместе с планом, либо ErrSubNotFound.
func (s *Storage) GetCurrentSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	const op = "storage.GetCurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `, ` + planJoinColumns + `
			  FROM user_subscriptions s
			  LEFT JOIN subscription_plans p ON p.id = s.plan_id
			  WHERE s.user_uid = $1 AND s.status IN ('active', 'cancelled')
			  ORDER BY s.created_at DESC
			  LIMIT 1`
	sub, err := scanSubscriptionWithPlan(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetRenewableSubscription возвращает последнюю отменённую или истёкшую
// подписку пользователя вместе с планом, либо ErrSubNotFound.
func (s *Storage) GetRenewableSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	const op = "storage.GetRenewableSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `, ` + planJoinColumns + `
			  FROM user_subscriptions s
			  LEFT JOIN subscription_plans p ON p.id = s.plan_id
			  WHERE s.user_uid = $1 AND s.status IN ('cancelled', 'expired')
			  ORDER BY s.created_at DESC
			  LIMIT 1`
	sub, err := scanSubscriptionWithPlan(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// MarkExpired лениво переводит подписку active→expired. Условие по статусу
// делает повторный перевод безопасным при конкурентных чтениях.
func (s *Storage) MarkExpired(ctx context.Context, id int64) error {
	const op = "storage.MarkExpired"

	query := `UPDATE user_subscriptions SET status = 'expired' WHERE id = $1 AND status = 'active'`
	if _, err := s.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CancelActiveSubscription отменяет активную подписку пользователя.
// Повторная отмена находит ноль строк и возвращает ErrSubNotFound.
func (s *Storage) CancelActiveSubscription(ctx context.Context, userUID string) (*models.UserSubscription, error) {
	const op = "storage.CancelActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions s
			  SET status = 'cancelled', cancelled_at = now(), auto_renew = FALSE
			  WHERE s.user_uid = $1 AND s.status = 'active'
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// RenewSubscription возвращает отменённую или истёкшую подписку в статус
// active с новыми датами и платёжными данными. Условие по статусу защищает
// от двойного продления; частичный уникальный индекс — от второй активной
// записи, если параллельно прошла новая покупка.
func (s *Storage) RenewSubscription(ctx context.Context, sub models.UserSubscription) (*models.UserSubscription, error) {
	const op = "storage.RenewSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions s
			  SET status = 'active', start_date = $2, end_date = $3, cancelled_at = NULL,
			      auto_renew = TRUE, last_payment_date = $4, last_payment_amount = $5,
			      payment_method = $6, transaction_id = $7, order_id = $8
			  WHERE s.id = $1 AND s.status IN ('cancelled', 'expired')
			  RETURNING ` + subscriptionColumns
	renewed, err := scanSubscription(s.DB.QueryRowContext(ctx, query,
		sub.ID, sub.StartDate, sub.EndDate,
		sub.PaymentInfo.LastPaymentDate, sub.PaymentInfo.LastPaymentAmount,
		sub.PaymentInfo.PaymentMethod, sub.PaymentInfo.TransactionID, sub.PaymentInfo.OrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubNotFound)
		}
		if isUniqueViolation(err, "user_subscriptions_one_active") {
			return nil, fmt.Errorf("%s: %w", op, ErrActiveSubExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return renewed, nil
}

// ListUserSubscriptions возвращает историю подписок пользователя с планами,
// новые первыми.
func (s *Storage) ListUserSubscriptions(ctx context.Context, userUID string) ([]*models.UserSubscription, error) {
	const op = "storage.ListUserSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `, ` + planJoinColumns + `
			  FROM user_subscriptions s
			  LEFT JOIN subscription_plans p ON p.id = s.plan_id
			  WHERE s.user_uid = $1
			  ORDER BY s.created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.UserSubscription
	for rows.Next() {
		sub, err := scanSubscriptionWithPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListSubscriptions возвращает все подписки с планами и владельцами
// для админской выборки, новые первыми.
func (s *Storage) ListSubscriptions(ctx context.Context) ([]*models.UserSubscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `, ` + planJoinColumns + `, u.name, u.email
			  FROM user_subscriptions s
			  LEFT JOIN subscription_plans p ON p.id = s.plan_id
			  JOIN users u ON u.uid = s.user_uid
			  ORDER BY s.created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.UserSubscription
	for rows.Next() {
		sub := &models.UserSubscription{}
		var (
			planID                                sql.NullInt64
			cancelledAt, lastPaymentDate          sql.NullTime
			lastPaymentAmount                     sql.NullFloat64
			paymentMethod, transactionID, orderID sql.NullString
			pID, maxUsers, trialDays              sql.NullInt64
			pName, pDescription, pDuration        sql.NullString
			pPrice                                sql.NullFloat64
			pIsActive                             sql.NullBool
			pCreatedAt                            sql.NullTime
			features                              []byte
		)
		if err := rows.Scan(&sub.ID, &sub.UserUID, &planID, &sub.Status, &sub.StartDate, &sub.EndDate,
			&cancelledAt, &sub.AutoRenew, &lastPaymentDate, &lastPaymentAmount,
			&paymentMethod, &transactionID, &orderID, &sub.CreatedAt,
			&pID, &pName, &pDescription, &pPrice, &pDuration, &features,
			&pIsActive, &maxUsers, &trialDays, &pCreatedAt,
			&sub.UserName, &sub.UserEmail); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sub.PlanID = planID.Int64
		if cancelledAt.Valid {
			sub.CancelledAt = &cancelledAt.Time
		}
		if lastPaymentDate.Valid {
			sub.PaymentInfo.LastPaymentDate = &lastPaymentDate.Time
		}
		sub.PaymentInfo.LastPaymentAmount = lastPaymentAmount.Float64
		sub.PaymentInfo.PaymentMethod = paymentMethod.String
		sub.PaymentInfo.TransactionID = transactionID.String
		sub.PaymentInfo.OrderID = orderID.String
		if pID.Valid {
			p := &models.SubscriptionPlan{
				ID:          pID.Int64,
				Name:        pName.String,
				Description: pDescription.String,
				Price:       pPrice.Float64,
				Duration:    pDuration.String,
				IsActive:    pIsActive.Bool,
				TrialDays:   int(trialDays.Int64),
				CreatedAt:   pCreatedAt.Time,
			}
			if err := json.Unmarshal(features, &p.Features); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if maxUsers.Valid {
				n := int(maxUsers.Int64)
				p.MaxUsers = &n
			}
			sub.Plan = p
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
