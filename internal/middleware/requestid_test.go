package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if captured == "" {
		t.Fatal("リクエストIDが採番されていない")
	}
	if got := w.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("%s = %q, want %q", RequestIDHeader, got, captured)
	}
}

func TestRequestIDMiddleware_PropagatesClientID(t *testing.T) {
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(RequestIDHeader, "client-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "client-abc" {
		t.Errorf("request id = %q, want client-abc", captured)
	}
}

func TestRequestIDMiddleware_RejectsOversizedClientID(t *testing.T) {
	var captured string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	long := strings.Repeat("x", 65)
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(RequestIDHeader, long)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured == long || captured == "" {
		t.Errorf("長すぎるIDは採番し直すべき: %q", captured)
	}
}
