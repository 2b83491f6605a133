// Package token генерирует случайные одноразовые токены: refresh-токены сессий,
// коды подтверждения почты и токены сброса пароля.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// NewOpaque возвращает криптостойкую случайную строку из 64 hex-символов.
// Используется для refresh-токенов и токенов сброса пароля.
func NewOpaque() (string, error) {
	const op = "token.NewOpaque"
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(buf), nil
}

// NewVerificationCode возвращает шестизначный цифровой код подтверждения почты.
func NewVerificationCode() (string, error) {
	const op = "token.NewVerificationCode"
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Hash возвращает hex от SHA-256 токена. В хранилище попадает только хэш
// токена сброса пароля, сам токен уходит пользователю в письме.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
