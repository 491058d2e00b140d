package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 1, Burst: 3, CleanupInterval: time.Minute})

	calls := 0
	handler := rl.Middleware("upload")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("127.0.0.1:50000"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	if calls != 3 {
		t.Errorf("handler call count = %d, want 3", calls)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.5, Burst: 1, CleanupInterval: time.Minute})

	handler := rl.Middleware("upload")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("127.0.0.1:50000"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("127.0.0.1:50001"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRateLimitMiddleware_IndependentPerClient(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute})

	handler := rl.Middleware("upload")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(addr))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, w.Code)
		}
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	rl.limiter("10.0.0.1")

	rl.cleanup(time.Now())
	if rl.LimiterCount() != 1 {
		t.Fatalf("最近アクセスしたエントリは残るべき")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount() = %d, want 0", rl.LimiterCount())
	}
}

func TestDefaultUploadRateLimiterConfig(t *testing.T) {
	cfg := DefaultUploadRateLimiterConfig()
	if cfg.Burst <= 0 || cfg.Rate <= 0 || cfg.CleanupInterval <= 0 {
		t.Errorf("DefaultUploadRateLimiterConfig() = %+v", cfg)
	}
}
