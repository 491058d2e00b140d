package pending

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/dermadash/internal/diagnostic"
	"github.com/hitoshi/dermadash/internal/model"
)

// --- モック定義 ---

type mockSyncer struct {
	syncFn func(ctx context.Context) (diagnostic.SyncReport, error)
	calls  atomic.Int32
}

func (m *mockSyncer) SyncPending(ctx context.Context) (diagnostic.SyncReport, error) {
	m.calls.Add(1)
	if m.syncFn != nil {
		return m.syncFn(ctx)
	}
	return diagnostic.SyncReport{}, nil
}

// コンパイル時にインターフェースの実装を検証する
var (
	_ Syncer = (*mockSyncer)(nil)
	_ Syncer = (*diagnostic.Store)(nil)
)

// safeBuffer はゴルーチンから書き込まれるログを保持する。
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestWorker(syncer Syncer) (*Worker, *safeBuffer, *time.Time) {
	buf := &safeBuffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	w := NewWorker(syncer, logger, time.Minute)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	return w, buf, &now
}

// --- テスト ---

func TestNewWorker_DefaultInterval(t *testing.T) {
	w := NewWorker(&mockSyncer{}, slog.Default(), 0)
	if w.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", w.interval)
	}
}

func TestRunOnce_SuccessResetsBackoff(t *testing.T) {
	syncer := &mockSyncer{}
	w, _, _ := newTestWorker(syncer)
	w.consecutiveFailures = 3
	w.nextRunAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if w.ConsecutiveFailures() != 0 || !w.NextRunAt().IsZero() {
		t.Errorf("バックオフがリセットされていない: failures=%d next=%v", w.ConsecutiveFailures(), w.NextRunAt())
	}
}

func TestRunOnce_NetworkErrorBacksOffExponentially(t *testing.T) {
	syncer := &mockSyncer{syncFn: func(ctx context.Context) (diagnostic.SyncReport, error) {
		return diagnostic.SyncReport{Attempted: 1, Failed: 1, Remaining: 2}, model.NewNetworkError(errors.New("refused"))
	}}
	w, buf, now := newTestWorker(syncer)

	for i, want := range []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute} {
		_, err := w.RunOnce(context.Background())
		if !model.HasCode(err, model.ErrCodeNetwork) {
			t.Fatalf("run %d: error = %v, want NETWORK_ERROR", i, err)
		}
		if got := w.NextRunAt().Sub(*now); got != want {
			t.Errorf("run %d: delay = %v, want %v", i, got, want)
		}
	}
	if w.ConsecutiveFailures() != 3 {
		t.Errorf("ConsecutiveFailures() = %d, want 3", w.ConsecutiveFailures())
	}
	if !strings.Contains(buf.String(), "バックオフ") {
		t.Errorf("バックオフのログが出力されていない: %s", buf.String())
	}
}

func TestRunOnce_PartialFailureBacksOffWithoutError(t *testing.T) {
	syncer := &mockSyncer{syncFn: func(ctx context.Context) (diagnostic.SyncReport, error) {
		return diagnostic.SyncReport{Attempted: 2, Confirmed: 1, Failed: 1, Remaining: 1}, nil
	}}
	w, _, _ := newTestWorker(syncer)

	report, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if report.Confirmed != 1 || w.ConsecutiveFailures() != 1 {
		t.Errorf("report=%+v failures=%d", report, w.ConsecutiveFailures())
	}
}

func TestRunOnce_AuthExpiredDoesNotBackOff(t *testing.T) {
	syncer := &mockSyncer{syncFn: func(ctx context.Context) (diagnostic.SyncReport, error) {
		return diagnostic.SyncReport{Attempted: 1, Failed: 1, Remaining: 1}, model.NewAuthExpiredError()
	}}
	w, _, _ := newTestWorker(syncer)

	_, err := w.RunOnce(context.Background())
	if !model.HasCode(err, model.ErrCodeAuthExpired) {
		t.Fatalf("error = %v, want AUTH_EXPIRED", err)
	}
	if w.ConsecutiveFailures() != 0 || !w.NextRunAt().IsZero() {
		t.Errorf("認証切れでバックオフすべきでない: failures=%d", w.ConsecutiveFailures())
	}
}

func TestTick_SkipsWhileBackingOff(t *testing.T) {
	syncer := &mockSyncer{}
	w, _, now := newTestWorker(syncer)
	w.nextRunAt = now.Add(time.Minute)

	w.tick(context.Background())
	if syncer.calls.Load() != 0 {
		t.Errorf("バックオフ中に再送すべきでない: calls=%d", syncer.calls.Load())
	}

	*now = now.Add(2 * time.Minute)
	w.tick(context.Background())
	if syncer.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", syncer.calls.Load())
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ran := make(chan struct{}, 1)
	syncer := &mockSyncer{syncFn: func(ctx context.Context) (diagnostic.SyncReport, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return diagnostic.SyncReport{}, nil
	}}
	buf := &safeBuffer{}
	w := NewWorker(syncer, slog.New(slog.NewJSONHandler(buf, nil)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("起動直後に再送が実行されなかった")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後にワーカーが停止しなかった")
	}
	if !strings.Contains(buf.String(), "同期ワーカーを停止しました") {
		t.Errorf("停止ログが出力されていない: %s", buf.String())
	}
}
