package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/dermadash/internal/model"
)

// ClientHeader は状態変更リクエストに必須のカスタムヘッダー名。
// カスタムヘッダー付きのクロスオリジンリクエストはプリフライトが必要になるため、
// 許可されていないオリジンのページからの送信はブラウザが遮断する。
const ClientHeader = "X-Dermadash-Client"

// NewClientHeaderMiddleware は状態変更メソッド（POST, PUT, PATCH, DELETE）に
// ClientHeaderの付与を要求するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
func NewClientHeaderMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || r.Header.Get(ClientHeader) != "" {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("client header validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", r.Header.Get("Origin")),
			)
			WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
				Code:     "CLIENT_HEADER_REQUIRED",
				Message:  "リクエストヘッダー " + ClientHeader + " が必要です。",
				Category: "system",
				Action:   "ダッシュボードから操作してください。",
			})
		})
	}
}

// isSafeMethod は状態を変更しないHTTPメソッドかどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
