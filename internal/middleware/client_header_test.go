package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientHeaderMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"GETはヘッダー不要", http.MethodGet, "", http.StatusOK, true},
		{"OPTIONSはヘッダー不要", http.MethodOptions, "", http.StatusOK, true},
		{"POSTはヘッダー必須", http.MethodPost, "", http.StatusForbidden, false},
		{"POSTでヘッダーあり", http.MethodPost, "dashboard", http.StatusOK, true},
		{"DELETEはヘッダー必須", http.MethodDelete, "", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			called := false
			handler := NewClientHeaderMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/session/logout", nil)
			if tt.header != "" {
				req.Header.Set(ClientHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode: %v", err)
				}
				if body.Code != "CLIENT_HEADER_REQUIRED" {
					t.Errorf("code = %q", body.Code)
				}
			}
		})
	}
}
