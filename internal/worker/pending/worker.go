// Package pending は未確定の診断記録をバックグラウンドでリモートへ再送するワーカーを提供する。
package pending

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/dermadash/internal/diagnostic"
	"github.com/hitoshi/dermadash/internal/model"
)

// Syncer は未確定記録の再送インターフェース。
type Syncer interface {
	SyncPending(ctx context.Context) (diagnostic.SyncReport, error)
}

// Worker は一定間隔で未確定記録を再送する。
// 再送に失敗した場合は指数バックオフで次回の実行を遅らせる。
type Worker struct {
	syncer   Syncer
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu                  sync.Mutex
	consecutiveFailures int
	nextRunAt           time.Time
}

// NewWorker はWorkerを生成する。intervalが0以下の場合はデフォルト値1分を使用する。
func NewWorker(syncer Syncer, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		syncer:   syncer,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start は同期間隔のティッカーでワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("同期ワーカーを開始しました", slog.Duration("interval", w.interval))

	// 起動直後に1回実行
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("同期ワーカーを停止しました")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	w.mu.Lock()
	waiting := w.now().Before(w.nextRunAt)
	w.mu.Unlock()
	if waiting {
		return
	}
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("同期サイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce は未確定記録の再送を1回実行し、結果に応じてバックオフ状態を更新する。
// 認証切れの場合はセッションが破棄済みのためバックオフしない。
func (w *Worker) RunOnce(ctx context.Context) (diagnostic.SyncReport, error) {
	start := w.now()
	report, err := w.syncer.SyncPending(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case err != nil && model.HasCode(err, model.ErrCodeAuthExpired):
		w.consecutiveFailures = 0
		w.nextRunAt = time.Time{}
		return report, fmt.Errorf("未確定記録の再送中に認証が切れました: %w", err)
	case err != nil || report.Failed > 0:
		delay := CalculateBackoff(w.interval, w.consecutiveFailures)
		w.consecutiveFailures++
		w.nextRunAt = start.Add(delay)
		w.logger.Warn("未確定記録の再送に失敗したためバックオフします",
			slog.Int("consecutive_failures", w.consecutiveFailures),
			slog.Duration("delay", delay),
			slog.Int("remaining", report.Remaining),
		)
		if err != nil {
			return report, fmt.Errorf("未確定記録の再送に失敗: %w", err)
		}
		return report, nil
	default:
		w.consecutiveFailures = 0
		w.nextRunAt = time.Time{}
		return report, nil
	}
}

// ConsecutiveFailures は連続失敗回数を返す。
func (w *Worker) ConsecutiveFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consecutiveFailures
}

// NextRunAt はバックオフ中の次回実行時刻を返す。バックオフ中でなければゼロ値を返す。
func (w *Worker) NextRunAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextRunAt
}
