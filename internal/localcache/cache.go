// Package localcache はローカルに永続化される診断記録のキャッシュを提供する。
// 未認証時の唯一の保存先であり、認証時はリモート未確定の記録のバッファとなる。
package localcache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/repository"
)

const (
	// SlotKey は診断記録を保存するスロットのキー。
	SlotKey = "dermadash.diagnostics"
	// LegacySlotKey は旧ブラウザ版が使用していたキー。初回読み込み時に移行する。
	LegacySlotKey = "skincare_diagnostics_v3"
	// SchemaVersion は現在の保存形式のバージョン。
	SchemaVersion = 2
	// corruptSuffix は破損データの退避先キーの接尾辞。
	corruptSuffix = ".corrupt"
)

// Cache は診断記録のローカルキャッシュ。
// スロットの読み書きはこのCacheのみが行う。
type Cache struct {
	slots  repository.SlotStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

// Option はCacheの設定を変更する。
type Option func(*Cache)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithIDGenerator は相関IDの生成関数を差し替える。
func WithIDGenerator(gen func() string) Option {
	return func(c *Cache) { c.newID = gen }
}

// New はCacheを生成する。
func New(slots repository.SlotStore, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		slots:  slots,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append は新しい記録を未確定状態で追加する。
// ローカルIDは単調増加で採番し、相関IDはUUIDで生成する。
func (c *Cache) Append(ctx context.Context, d Draft) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.load(ctx)
	if err != nil {
		return Entry{}, err
	}

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	e := Entry{
		LocalID:           env.NextLocalID,
		CorrelationID:     c.newID(),
		Status:            StatusPending,
		CreatedAt:         createdAt,
		ClassLabel:        d.ClassLabel,
		ConfidencePercent: d.ConfidencePercent,
		Probabilities:     d.Probabilities,
		RiskLevel:         d.RiskLevel,
		Thumbnail:         d.Thumbnail,
	}
	env.NextLocalID++
	env.Entries = append(env.Entries, e)

	if err := c.save(ctx, env); err != nil {
		return Entry{}, err
	}

	c.logger.Debug("診断記録をローカルに保存しました",
		slog.Int64("local_id", e.LocalID),
		slog.String("correlation_id", e.CorrelationID),
	)
	return e, nil
}

// List は全エントリをローカルID順に返す。
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return env.Entries, nil
}

// Pending は未確定のエントリをローカルID順に返す。
func (c *Cache) Pending(ctx context.Context) ([]Entry, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsPending() {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Find はローカルIDでエントリを検索する。見つからない場合はnilを返す。
func (c *Cache) Find(ctx context.Context, localID int64) (*Entry, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].LocalID == localID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// FindByVisibleID は外部公開IDでエントリを検索する。見つからない場合はnilを返す。
// 接頭辞付きのIDはローカルIDとして、それ以外はサーバーIDとして照合する。
func (c *Cache) FindByVisibleID(ctx context.Context, id string) (*Entry, error) {
	if model.IsPendingID(id) {
		localID, err := strconv.ParseInt(strings.TrimPrefix(id, model.PendingIDPrefix), 10, 64)
		if err != nil {
			return nil, nil
		}
		return c.Find(ctx, localID)
	}

	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].RemoteID != "" && entries[i].RemoteID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// MarkConfirmed はエントリをサーバーIDで確定済みにする。
// 同じサーバーIDで確定済みの場合は何もしない。
func (c *Cache) MarkConfirmed(ctx context.Context, localID int64, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("サーバーIDが空です: local_id=%d", localID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.load(ctx)
	if err != nil {
		return err
	}

	for i := range env.Entries {
		e := &env.Entries[i]
		if e.LocalID != localID {
			continue
		}
		if e.Status == StatusConfirmed && e.RemoteID == remoteID {
			return nil
		}
		e.Status = StatusConfirmed
		e.RemoteID = remoteID
		return c.save(ctx, env)
	}
	return model.NewNotFoundError(model.PendingID(localID))
}

// CompactConfirmed は作成日時がbeforeより古い確定済みエントリのサムネイルを破棄し、圧縮した件数を返す。
// エントリ自体は削除しない。未確定のエントリは変更しない。
func (c *Cache) CompactConfirmed(ctx context.Context, before time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	compacted := 0
	for i := range env.Entries {
		e := &env.Entries[i]
		if e.Status != StatusConfirmed || e.Thumbnail == "" || !e.CreatedAt.Before(before) {
			continue
		}
		e.Thumbnail = ""
		compacted++
	}
	if compacted == 0 {
		return 0, nil
	}
	if err := c.save(ctx, env); err != nil {
		return 0, err
	}
	return compacted, nil
}

// sortEntries はエントリをローカルID順に並べる。
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LocalID < entries[j].LocalID
	})
}
