package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"anon_0123456789abcdef0123456789abcdef", true},
		{"anon_short", false},
		{"anon_0123456789ABCDEF0123456789ABCDEF", false},
		{"0123456789abcdef0123456789abcdef", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.id); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestMiddleware_MintsIdentity(t *testing.T) {
	var seen string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !Valid(seen) {
		t.Errorf("Expected a valid minted identity, got %q", seen)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != seen {
		t.Errorf("Expected %s cookie with value %q, got %v", AnonCookieName, seen, cookies)
	}
}

func TestMiddleware_ReusesCookie(t *testing.T) {
	const id = "anon_0123456789abcdef0123456789abcdef"

	var seen string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != id {
		t.Errorf("Expected identity %q, got %q", id, seen)
	}
}

func TestMiddleware_RejectsMalformedCookie(t *testing.T) {
	var seen string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "not-an-id"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "not-an-id" || !Valid(seen) {
		t.Errorf("Expected a fresh identity, got %q", seen)
	}
}
