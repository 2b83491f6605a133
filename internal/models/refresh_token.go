package models

import "time"

// RefreshToken представляет выданный refresh-токен сессии.
// Токен отзывается, а не удаляется: цепочка ReplacedByToken сохраняется
// для последующего аудита повторного использования.
type RefreshToken struct {
	Token           string     // Непрозрачная случайная строка, уникальная
	UserUID         string     // Владелец токена
	ExpiresAt       time.Time  // Срок действия
	CreatedByIP     string     // IP, с которого выдан
	CreatedAt       time.Time  //
	RevokedAt       *time.Time // Момент отзыва, nil для активного токена
	RevokedByIP     *string    // IP, с которого отозван
	ReplacedByToken *string    // Токен, выданный взамен при ротации
}

// IsExpired сообщает, истёк ли срок действия токена.
func (t *RefreshToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// IsActive сообщает, действителен ли токен: не отозван и не истёк.
func (t *RefreshToken) IsActive() bool {
	return t.RevokedAt == nil && !t.IsExpired()
}
