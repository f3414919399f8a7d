package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		require.True(t, ok, "user id not in context")
		assert.Equal(t, int64(42), id)
	})

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, 42)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "no cookies set by SetAuthCookie")

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, nextCalled)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "no signature", cookie: &http.Cookie{Name: authCookieName, Value: "42"}},
		{name: "tampered id", cookie: &http.Cookie{Name: authCookieName, Value: "43." + m.mac("42")}},
		{name: "foreign secret", cookie: &http.Cookie{Name: authCookieName, Value: other.Sign(42)}},
		{name: "non-positive id", cookie: &http.Cookie{Name: authCookieName, Value: m.Sign(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestNewAuthMiddleware_RandomSecret(t *testing.T) {
	a := NewAuthMiddleware("")
	b := NewAuthMiddleware("")
	assert.NotEqual(t, a.Sign(1), b.Sign(1))
}

func TestAdminOnly(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "matching token", token: "s3cret", header: "s3cret", want: http.StatusNoContent},
		{name: "wrong token", token: "s3cret", header: "guess", want: http.StatusForbidden},
		{name: "missing header", token: "s3cret", want: http.StatusForbidden},
		{name: "admin disabled", token: "", header: "", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminOnly(tt.token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			r := httptest.NewRequest(http.MethodPost, "/api/admin/anything", nil)
			if tt.header != "" {
				r.Header.Set(AdminTokenHeader, tt.header)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
