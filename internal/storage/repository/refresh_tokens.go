package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/subscriptionpro/subscription-pro/internal/models"
)

// CreateRefreshToken сохраняет новый refresh-токен. Каждый вызов создаёт
// отдельную строку: токены не переиспользуются.
func (s *Storage) CreateRefreshToken(ctx context.Context, t models.RefreshToken) error {
	const op = "storage.CreateRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO refresh_tokens (token, user_uid, expires_at, created_by_ip)
			  VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query,
		t.Token, t.UserUID, t.ExpiresAt, t.CreatedByIP); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRefreshToken возвращает запись токена вне зависимости от её состояния.
func (s *Storage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const op = "storage.GetRefreshToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT token, user_uid, expires_at, created_by_ip, created_at,
				  revoked_at, revoked_by_ip, replaced_by_token
			  FROM refresh_tokens
			  WHERE token = $1`
	t := &models.RefreshToken{}
	var (
		revokedAt               sql.NullTime
		revokedByIP, replacedBy sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, query, token).Scan(
		&t.Token, &t.UserUID, &t.ExpiresAt, &t.CreatedByIP, &t.CreatedAt,
		&revokedAt, &revokedByIP, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if revokedByIP.Valid {
		t.RevokedByIP = &revokedByIP.String
	}
	if replacedBy.Valid {
		t.ReplacedByToken = &replacedBy.String
	}
	return t, nil
}

// revokeActiveQuery отзывает токен, только если он сейчас активен.
// Условие revoked_at IS NULL делает отзыв атомарным compare-and-set:
// из N конкурентных вызовов строку изменит ровно один.
const revokeActiveQuery = `UPDATE refresh_tokens
	SET revoked_at = now(), revoked_by_ip = $2, replaced_by_token = $3
	WHERE token = $1 AND revoked_at IS NULL AND expires_at > now()
	RETURNING user_uid`

// RevokeRefreshToken отзывает активный токен (logout).
// Отсутствующий, отозванный и просроченный токен неразличимы для вызывающего:
// все три случая дают ErrTokenNotFound.
func (s *Storage) RevokeRefreshToken(ctx context.Context, token, revokedByIP string) error {
	const op = "storage.RevokeRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var userUID string
	err := s.DB.QueryRowContext(ctx, revokeActiveQuery, token, revokedByIP, nil).Scan(&userUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RotateRefreshToken атомарно отзывает старый токен и записывает новый
// в одной транзакции. Отзыв условный (revoked_at IS NULL), поэтому при
// конкурентной ротации одного и того же токена успеет ровно один вызов,
// остальные получат ErrTokenNotFound. Возвращает UID владельца токена.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldToken string, newToken models.RefreshToken) (string, error) {
	const op = "storage.RotateRefreshToken"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userUID string
	err = tx.QueryRowContext(ctx, revokeActiveQuery,
		oldToken, newToken.CreatedByIP, newToken.Token).Scan(&userUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	insertQuery := `INSERT INTO refresh_tokens (token, user_uid, expires_at, created_by_ip)
				    VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		newToken.Token, userUID, newToken.ExpiresAt, newToken.CreatedByIP); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userUID, nil
}

// DeleteExpiredRefreshTokens удаляет просроченные токены. Отозванные, но ещё
// не истёкшие строки остаются: по цепочке replaced_by_token можно отследить
// повторное использование токена. Чистка пассивная: вызывается по случаю,
// а не по расписанию.
func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "storage.DeleteExpiredRefreshTokens"

	query := `DELETE FROM refresh_tokens
			  WHERE expires_at < now()`
	result, err := s.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected, nil
}
