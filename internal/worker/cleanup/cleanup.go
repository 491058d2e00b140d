// Package cleanup はローカルに保持した確定済み診断記録の圧縮ジョブを提供する。
// 保持期間（デフォルト180日）を超過した確定済み記録のサムネイルを定期的に破棄する。
// 記録そのものは削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultRetentionDays はサムネイルを保持する日数のデフォルト値。
	DefaultRetentionDays = 180
	// DefaultInterval は実行間隔のデフォルト値。
	DefaultInterval = 24 * time.Hour
)

// Compactor はローカルキャッシュの圧縮操作を抽象化するインターフェース。
type Compactor interface {
	CompactConfirmed(ctx context.Context, before time.Time) (int, error)
}

// CleanupJob は保持期間を超過した確定済み記録の圧縮ジョブ。
// 冪等な処理を保証する。
type CleanupJob struct {
	cache         Compactor
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // サムネイルの保持日数（デフォルト: 180、負の値は0として扱う）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。
func NewCleanupJob(cache Compactor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		cache:         cache,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は保持期間を超過した確定済み記録のサムネイルを破棄する。
// 冪等: 対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	retention := max(j.RetentionDays, 0)
	cutoff := j.now().AddDate(0, 0, -retention)
	compacted, err := j.cache.CompactConfirmed(ctx, cutoff)
	if err != nil {
		j.logger.Error("記録クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", retention),
		)
		return fmt.Errorf("記録クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("記録クリーンアップジョブが完了しました",
		slog.Int("compacted_count", compacted),
		slog.Int("retention_days", retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔でジョブを実行する。コンテキストがキャンセルされるまで継続する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 起動直後に1回実行
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
