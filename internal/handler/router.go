package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Sanitizer         security.TextSanitizerService

	// セッション
	SessionService SessionServiceInterface

	// 画面遷移
	Navigator NavigatorInterface

	// 診断
	Uploader      UploaderInterface
	MaxImageBytes int64

	// 記録
	RecordStore RecordStoreInterface

	// 配信
	Hub     http.Handler
	Metrics http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → ClientHeader
//
// 画像の送信のみアップロード用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewClientHeaderMiddleware(deps.Logger))

	sessionHandler := NewSessionHandler(deps.SessionService, deps.Sanitizer)
	viewHandler := NewViewHandler(deps.Navigator)
	diagnoseHandler := NewDiagnoseHandler(deps.Uploader, deps.Navigator, deps.Sanitizer, deps.Logger, deps.MaxImageBytes)
	recordHandler := NewRecordHandler(deps.RecordStore, deps.Sanitizer)

	// セッション管理
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", sessionHandler.Get)
		r.Post("/login", sessionHandler.Login)
		r.Post("/register", sessionHandler.Register)
		r.Post("/logout", sessionHandler.Logout)
	})

	// 画面遷移
	r.Get("/api/view", viewHandler.Get)
	r.Post("/api/navigate", viewHandler.Navigate)

	// 診断
	r.Route("/api/diagnose", func(r chi.Router) {
		r.Post("/select", diagnoseHandler.Select)
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware("upload")).Post("/", diagnoseHandler.Submit)
		} else {
			r.Post("/", diagnoseHandler.Submit)
		}
	})

	// 診断記録
	r.Route("/api/records", func(r chi.Router) {
		r.Get("/", recordHandler.List)
		r.Get("/{id}", recordHandler.Get)
	})

	if deps.Hub != nil {
		r.Handle("/ws", deps.Hub)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	return r
}
