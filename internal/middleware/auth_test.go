package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sessionCookie(t *testing.T, a *AdminAuth) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	a.SetSessionCookie(w)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}
	return cookies[0]
}

func TestAdminAuth_WithValidCookie(t *testing.T) {
	a := NewAdminAuth("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodPost, "/api/admin/pricing/reload", nil)
	r.AddCookie(sessionCookie(t, a))

	a.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAdminAuth_Rejects(t *testing.T) {
	a := NewAdminAuth("test-secret")
	other := NewAdminAuth("other-secret")

	expired := NewAdminAuth("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "without cookie"},
		{name: "garbage", cookie: &http.Cookie{Name: adminCookieName, Value: "garbage"}},
		{name: "foreign signature", cookie: sessionCookie(t, other)},
		{name: "expired", cookie: sessionCookie(t, expired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/admin/pricing/reload", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}

			a.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAdminAuth_Disabled(t *testing.T) {
	a := NewAdminAuth("")

	if a.CheckSecret("") {
		t.Fatalf("empty secret must not be accepted")
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/admin/pricing/reload", nil)
	a.Middleware(http.NotFoundHandler()).ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAdminAuth_CheckSecret(t *testing.T) {
	a := NewAdminAuth("test-secret")

	if !a.CheckSecret("test-secret") {
		t.Fatalf("configured secret rejected")
	}
	if a.CheckSecret("test-secreT") {
		t.Fatalf("wrong secret accepted")
	}
}
