package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

const userColumns = `uid, name, email, password_hash, role, is_verified,
	verification_token, verification_token_expiry,
	reset_password_token, reset_password_expiry, last_login, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var (
		verificationToken, resetToken   sql.NullString
		verificationExpiry, resetExpiry sql.NullTime
		lastLogin                       sql.NullTime
	)
	if err := row.Scan(&u.UID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsVerified,
		&verificationToken, &verificationExpiry,
		&resetToken, &resetExpiry, &lastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	if verificationToken.Valid {
		u.VerificationToken = &verificationToken.String
	}
	if verificationExpiry.Valid {
		u.VerificationTokenExpiry = &verificationExpiry.Time
	}
	if resetToken.Valid {
		u.ResetPasswordToken = &resetToken.String
	}
	if resetExpiry.Valid {
		u.ResetPasswordExpiry = &resetExpiry.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его UID.
// Почта хранится в нижнем регистре; дубликат даёт ErrUserExists.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (name, email, password_hash, role)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		user.Name, strings.ToLower(user.Email), user.PasswordHash, user.Role).Scan(&newUID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return "", fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByEmail возвращает пользователя по почте или ErrUserNotFound.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUID возвращает пользователя по его UID или ErrUserNotFound.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateLastLogin фиксирует момент успешного входа.
func (s *Storage) UpdateLastLogin(ctx context.Context, userUID string) error {
	const op = "storage.UpdateLastLogin"

	query := `UPDATE users SET last_login = now() WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetVerificationToken сохраняет код подтверждения почты и срок его действия.
func (s *Storage) SetVerificationToken(ctx context.Context, userUID, code string, expiry time.Time) error {
	const op = "storage.SetVerificationToken"

	query := `UPDATE users
			  SET verification_token = $1, verification_token_expiry = $2
			  WHERE uid = $3`
	if _, err := s.DB.ExecContext(ctx, query, code, expiry, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// VerifyUserByToken подтверждает почту по одноразовому коду.
// Код гасится в том же запросе; просроченный или чужой код даёт ErrTokenNotFound.
func (s *Storage) VerifyUserByToken(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.VerifyUserByToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_verified = TRUE, verification_token = NULL, verification_token_expiry = NULL
			  WHERE verification_token = $1 AND verification_token_expiry > now()
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetResetPasswordToken сохраняет хэш токена сброса пароля и срок его действия.
func (s *Storage) SetResetPasswordToken(ctx context.Context, userUID, tokenHash string, expiry time.Time) error {
	const op = "storage.SetResetPasswordToken"

	query := `UPDATE users
			  SET reset_password_token = $1, reset_password_expiry = $2
			  WHERE uid = $3`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash, expiry, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearResetPasswordToken откатывает выданный токен сброса пароля.
// Вызывается, если письмо со ссылкой отправить не удалось.
func (s *Storage) ClearResetPasswordToken(ctx context.Context, userUID string) error {
	const op = "storage.ClearResetPasswordToken"

	query := `UPDATE users
			  SET reset_password_token = NULL, reset_password_expiry = NULL
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetPasswordByToken устанавливает новый хэш пароля по действующему
// токену сброса и гасит токен. Неизвестный или просроченный токен
// даёт ErrTokenNotFound.
func (s *Storage) ResetPasswordByToken(ctx context.Context, tokenHash, passwordHash string) error {
	const op = "storage.ResetPasswordByToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_hash = $2, reset_password_token = NULL, reset_password_expiry = NULL
			  WHERE reset_password_token = $1 AND reset_password_expiry > now()`
	result, err := s.DB.ExecContext(ctx, query, tokenHash, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return nil
}

// ListUsersWithSubscription возвращает пользователей вместе с текущей
// подпиской каждого одним запросом: последняя подписка в статусе active
// или cancelled, если такая есть.
func (s *Storage) ListUsersWithSubscription(ctx context.Context) ([]*models.UserWithSubscription, error) {
	const op = "storage.ListUsersWithSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.uid, u.name, u.email, u.role, u.is_verified, u.last_login, u.created_at,
				  p.name, sub.status, sub.end_date
			  FROM users u
			  LEFT JOIN LATERAL (
				  SELECT us.plan_id, us.status, us.end_date
				  FROM user_subscriptions us
				  WHERE us.user_uid = u.uid AND us.status IN ('active', 'cancelled')
				  ORDER BY us.created_at DESC
				  LIMIT 1
			  ) sub ON TRUE
			  LEFT JOIN subscription_plans p ON p.id = sub.plan_id
			  ORDER BY u.created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.UserWithSubscription
	for rows.Next() {
		row := &models.UserWithSubscription{}
		var (
			planName, subStatus sql.NullString
			subEndDate          sql.NullTime
			lastLogin           sql.NullTime
		)
		if err := rows.Scan(&row.User.UID, &row.User.Name, &row.User.Email, &row.User.Role,
			&row.User.IsVerified, &lastLogin, &row.User.CreatedAt,
			&planName, &subStatus, &subEndDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if lastLogin.Valid {
			row.User.LastLogin = &lastLogin.Time
		}
		if planName.Valid {
			row.PlanName = &planName.String
		}
		if subStatus.Valid {
			row.SubscriptionStatus = &subStatus.String
		}
		if subEndDate.Valid {
			row.SubscriptionEndDate = &subEndDate.Time
		}
		result = append(result, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateUserRole меняет роль пользователя и возвращает обновлённую запись.
func (s *Storage) UpdateUserRole(ctx context.Context, userUID, role string) (*models.User, error) {
	const op = "storage.UpdateUserRole"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET role = $2 WHERE uid = $1 RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
