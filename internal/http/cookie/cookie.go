// Package cookie управляет cookie с refresh-токеном. Токен никогда не
// попадает в тело ответа: он живёт только в HttpOnly cookie.
package cookie

import (
	"net/http"
	"time"
)

// RefreshTokenName — имя cookie с refresh-токеном.
const RefreshTokenName = "refresh_token"

// SetRefreshToken выставляет HttpOnly cookie с refresh-токеном на весь сайт.
// Secure включается вне локальной среды.
func SetRefreshToken(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearRefreshToken стирает cookie с refresh-токеном (logout).
func ClearRefreshToken(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshToken читает refresh-токен из cookie запроса.
func RefreshToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshTokenName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
