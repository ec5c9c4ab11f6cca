// Package middleware содержит HTTP middleware сервиса оформления заказов.
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	adminCookieName = "admin_session"
	adminCookieTTL  = 12 * time.Hour
)

// AdminAuth проверяет доступ к административным маршрутам по подписанному cookie.
// Пустой секрет отключает административный доступ полностью.
type AdminAuth struct {
	secretKey []byte
	now       func() time.Time
}

// NewAdminAuth создаёт AdminAuth с указанным секретом администратора.
func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{
		secretKey: []byte(secret),
		now:       time.Now,
	}
}

// Enabled сообщает, настроен ли административный доступ.
func (a *AdminAuth) Enabled() bool {
	return len(a.secretKey) > 0
}

// CheckSecret сравнивает переданный секрет с настроенным за постоянное время.
func (a *AdminAuth) CheckSecret(secret string) bool {
	if !a.Enabled() {
		return false
	}
	return hmac.Equal([]byte(secret), a.secretKey)
}

// Middleware пропускает запрос только с действительным cookie администратора.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}

		cookie, err := r.Cookie(adminCookieName)
		if err != nil || !a.parseCookie(cookie.Value) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie устанавливает cookie администратора со сроком действия.
func (a *AdminAuth) SetSessionCookie(w http.ResponseWriter) {
	expires := a.now().Add(adminCookieTTL)

	cookie := &http.Cookie{
		Name:     adminCookieName,
		Value:    a.sign(strconv.FormatInt(expires.Unix(), 10)),
		Path:     "/api/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AdminAuth) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AdminAuth) parseCookie(value string) bool {
	payload, signature, ok := strings.Cut(value, ".")
	if !ok {
		return false
	}

	expected := a.sign(payload)
	_, expectedSig, _ := strings.Cut(expected, ".")
	if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
		return false
	}

	expiresAt, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return false
	}
	return a.now().Unix() < expiresAt
}
