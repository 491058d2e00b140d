package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dermadash/internal/auth"
	"github.com/hitoshi/dermadash/internal/backend"
	"github.com/hitoshi/dermadash/internal/config"
	"github.com/hitoshi/dermadash/internal/database"
	"github.com/hitoshi/dermadash/internal/diagnostic"
	"github.com/hitoshi/dermadash/internal/handler"
	"github.com/hitoshi/dermadash/internal/localcache"
	"github.com/hitoshi/dermadash/internal/logger"
	"github.com/hitoshi/dermadash/internal/metrics"
	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/render"
	"github.com/hitoshi/dermadash/internal/repository"
	"github.com/hitoshi/dermadash/internal/security"
	"github.com/hitoshi/dermadash/internal/upload"
	"github.com/hitoshi/dermadash/internal/view"
	"github.com/hitoshi/dermadash/internal/worker/cleanup"
	"github.com/hitoshi/dermadash/internal/worker/pending"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// App は全コンポーネントを配線したアプリケーション。
// Routerは描画担当が決まった後にAttachで生成する。
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Slots    repository.SlotStore
	Client   *backend.Client
	Session  *auth.Service
	Cache    *localcache.Cache
	Store    *diagnostic.Store
	Uploader *upload.Pipeline
	Router   *view.Router
}

// New はストレージを開き、Router以外の依存関係をワイヤリングする。
// 呼び出し元は使用後にCloseを呼ぶこと。
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	// 1. ストレージ
	slots, err := database.Open(cfg.StorageBackend, cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	log.Info("storage opened",
		slog.String("backend", cfg.StorageBackend),
		slog.String("data_dir", cfg.DataDir),
	)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リモートクライアント
	client := backend.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		backend.ClientConfig{
			BaseURL:   cfg.APIBaseURL,
			RateLimit: cfg.APIRateLimit,
			RateBurst: cfg.APIRateBurst,
		},
		log, collector,
	)

	// 4. ドメインサービス
	session := auth.NewService(client, repository.NewSlotTokenRepository(slots), log)
	cache := localcache.New(slots, log)
	store := diagnostic.NewStore(session, cache, client, log, collector)
	uploader := upload.NewPipeline(client, store, session, log, collector, upload.Config{
		MaxBytes:          cfg.MaxUploadBytes,
		ThumbnailMaxBytes: cfg.ThumbnailMaxBytes,
	})

	return &App{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Metrics:  collector,
		Slots:    slots,
		Client:   client,
		Session:  session,
		Cache:    cache,
		Store:    store,
		Uploader: uploader,
	}, nil
}

// Attach は描画担当を指定してRouterを生成する。
func (a *App) Attach(renderer render.Renderer) *view.Router {
	a.Router = view.NewRouter(a.Session, a.Store, a.Uploader, renderer, a.Logger, a.Metrics, view.Options{
		AllowOffline: a.Config.AllowOffline,
	})
	return a.Router
}

// Verify は永続化されたトークンを検証する。
// 認証エラー以外の失敗は未認証として続行できるため、ログのみ出力する。
func (a *App) Verify(ctx context.Context) {
	if err := a.Session.Verify(ctx); err != nil {
		a.Logger.Warn("session verification failed", slog.String("error", err.Error()))
	}
}

// Close はRouterとストレージを閉じる。
func (a *App) Close() error {
	var errs []error
	if a.Router != nil {
		errs = append(errs, a.Router.Close())
	}
	errs = append(errs, a.Slots.Close())
	return errors.Join(errs...)
}

// serveOptions はserveモードのテスト用フック。
type serveOptions struct {
	// ready はリスナーの準備完了時にアドレスを受け取る。
	ready func(addr string)
}

// runServe はダッシュボードAPIサーバーモードで起動する。
// WebSocketハブを描画担当としてRouterを生成し、未確定記録の再送ワーカーと
// ローカルキャッシュのクリーンアップジョブをバックグラウンドで実行する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, a *App, opts serveOptions) error {
	cfg := a.Config
	log := a.Logger

	// 1. 描画担当とRouter
	sanitizer := security.NewTextSanitizer()
	hub := handler.NewHub(sanitizer, log, cfg.CORSAllowedOrigin)
	defer hub.Close()
	navigator := a.Attach(hub)

	// 2. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.DefaultUploadRateLimiterConfig(), log)
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Sanitizer:         sanitizer,
		SessionService:    a.Session,
		Navigator:         navigator,
		Uploader:          a.Uploader,
		MaxImageBytes:     cfg.MaxUploadBytes,
		RecordStore:       a.Store,
		Hub:               hub,
		Metrics:           metrics.Handler(a.Registry),
	})

	// 3. バックグラウンドジョブ
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 検証中の画面遷移はRouterが保留し、検証完了後に再実行する
	go a.Verify(ctx)

	syncWorker := pending.NewWorker(a.Store, log, cfg.SyncInterval)
	go syncWorker.Start(ctx)

	cleanupJob := cleanup.NewCleanupJob(a.Cache, log)
	cleanupJob.RetentionDays = cfg.LocalRetentionDays
	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	// 4. HTTPサーバーの起動
	listener, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("dashboard server starting", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	if opts.ready != nil {
		opts.ready(listener.Addr().String())
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}

	log.Info("shutting down dashboard server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("dashboard server stopped gracefully")
	return nil
}
