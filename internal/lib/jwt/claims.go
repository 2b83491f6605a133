// Package jwt реализует выпуск и проверку access-токенов с пользовательскими
// claim полями.
//
// Access-токен короткоживущий и не хранится на сервере: проверка выполняется
// только по подписи и сроку действия, без обращения к хранилищу. Долгоживущей
// частью сессии занимается refresh-токен, см. internal/services/auth.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims описывает пользовательские данные, хранящиеся в access-токене.
type CustomClaims struct {
	UserUID              string `json:"user_uid"` // Идентификатор пользователя
	Role                 string `json:"role"`     // Роль пользователя
	jwt.RegisteredClaims        // Стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}

// Maker описывает интерфейс для выпуска и проверки access-токенов.
type Maker interface {
	// GenerateToken выпускает подписанный токен для пользователя с ролью.
	GenerateToken(userUID, role string) (string, error)
	// ParseToken проверяет подпись и срок действия, возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на основе секретного ключа и TTL (HS256).
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewMaker создаёт новый экземпляр MakerImpl.
func NewMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
