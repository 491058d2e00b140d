// Package diagnostic はローカルキャッシュとリモートサービスを1つの診断記録ストアとして統合する。
//
// 未認証時はローカルキャッシュが唯一の保存先となり、リモートは一切呼び出さない。
// 認証時はリモートが正となり、ローカルキャッシュは未確定記録のバッファとして使用する。
package diagnostic

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/dermadash/internal/localcache"
	"github.com/hitoshi/dermadash/internal/model"
)

// Session はストアが参照するセッションの読み取り専用ビュー。
type Session interface {
	// Token は認証済みの場合のみトークンを返す。
	Token() string
	Logout()
}

// Remote はリモート診断サービスのインターフェース。
type Remote interface {
	ListDiagnostics(ctx context.Context, token string) ([]model.RemoteDiagnostic, error)
	GetDiagnostic(ctx context.Context, token, id string) (*model.RemoteDiagnostic, error)
	CreateDiagnostic(ctx context.Context, token string, in model.NewRemoteDiagnostic) (*model.RemoteDiagnostic, error)
}

// Cache はローカルキャッシュのインターフェース。
type Cache interface {
	Append(ctx context.Context, d localcache.Draft) (localcache.Entry, error)
	List(ctx context.Context) ([]localcache.Entry, error)
	Pending(ctx context.Context) ([]localcache.Entry, error)
	FindByVisibleID(ctx context.Context, id string) (*localcache.Entry, error)
	MarkConfirmed(ctx context.Context, localID int64, remoteID string) error
}

var _ Cache = (*localcache.Cache)(nil)

// Recorder は同期結果を記録するインターフェース。
type Recorder interface {
	RecordSync(confirmed, failed int)
	SetPendingRecords(n int)
	RecordAuthExpired(source string)
}

// CreateInput は新規記録の入力。
type CreateInput struct {
	Prediction model.PredictionResult
	Thumbnail  string
}

// SyncReport は未確定記録の再送結果。
type SyncReport struct {
	Attempted int `json:"attempted"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Store は診断記録ストア。
type Store struct {
	session  Session
	cache    Cache
	remote   Remote
	logger   *slog.Logger
	recorder Recorder

	flights singleflight.Group
}

// NewStore はStoreを生成する。recorderはnilでもよい。
func NewStore(session Session, cache Cache, remote Remote, logger *slog.Logger, recorder Recorder) *Store {
	return &Store{
		session:  session,
		cache:    cache,
		remote:   remote,
		logger:   logger,
		recorder: recorder,
	}
}

// Create は予測結果から診断記録を作成する。
// 常にローカルへ先に書き込み、認証済みであればリモートへの登録を試みる。
// リモート登録に失敗しても記録は未確定として返し、次回のListで再送する。
func (s *Store) Create(ctx context.Context, in CreateInput) (model.DiagnosticRecord, error) {
	draft := localcache.DraftFromRecord(model.NewDiagnosticRecord("", in.Prediction, in.Thumbnail))
	entry, err := s.cache.Append(ctx, draft)
	if err != nil {
		return model.DiagnosticRecord{}, err
	}

	token := s.session.Token()
	if token == "" {
		s.reportPending(ctx)
		return entry.Record(), nil
	}

	remoteID, err := s.push(ctx, token, entry)
	if err != nil {
		if model.HasCode(err, model.ErrCodeAuthExpired) {
			s.expire("create")
		}
		s.logger.Warn("診断記録のリモート登録に失敗しました。未確定として保持します",
			slog.Int64("local_id", entry.LocalID),
			slog.String("correlation_id", entry.CorrelationID),
			slog.String("error", err.Error()),
		)
		s.reportPending(ctx)
		return entry.Record(), nil
	}

	rec := entry.Record()
	rec.ID = remoteID
	rec.Pending = false
	s.reportPending(ctx)
	return rec, nil
}

// push はエントリをリモートに登録し、確定済みにする。サーバーIDを返す。
func (s *Store) push(ctx context.Context, token string, entry localcache.Entry) (string, error) {
	created, err := s.remote.CreateDiagnostic(ctx, token, model.NewRemoteDiagnostic{
		ClientRef: entry.CorrelationID,
		Record:    entry.Record(),
	})
	if err != nil {
		return "", err
	}
	s.confirm(ctx, entry, created.Record.ID)
	return created.Record.ID, nil
}

// confirm はエントリを確定済みにする。失敗はログに記録し、相関IDによる重複排除に委ねる。
func (s *Store) confirm(ctx context.Context, entry localcache.Entry, remoteID string) {
	if err := s.cache.MarkConfirmed(ctx, entry.LocalID, remoteID); err != nil {
		s.logger.Error("診断記録の確定状態の保存に失敗しました",
			slog.Int64("local_id", entry.LocalID),
			slog.String("remote_id", remoteID),
			slog.String("error", err.Error()),
		)
	}
}

// List は診断記録を作成日時の昇順で返す。
// 認証済みの場合は未確定記録を再送した後にリモートの一覧を取得し、
// 残った未確定記録を作成日時で合流させる。同時刻の場合は未確定記録を先に置く。
func (s *Store) List(ctx context.Context) ([]model.DiagnosticRecord, error) {
	token := s.session.Token()
	if token == "" {
		return s.listLocal(ctx)
	}

	if _, err := s.syncPending(ctx, token); err != nil {
		if model.HasCode(err, model.ErrCodeAuthExpired) {
			s.expire("sync")
			return nil, err
		}
		s.logger.Warn("未確定記録の再送に失敗しました", slog.String("error", err.Error()))
	}

	remote, err := s.remote.ListDiagnostics(ctx, token)
	if err != nil {
		if model.HasCode(err, model.ErrCodeAuthExpired) {
			s.expire("list")
		}
		return nil, err
	}

	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return nil, err
	}

	return s.merge(ctx, remote, pending), nil
}

func (s *Store) listLocal(ctx context.Context) ([]model.DiagnosticRecord, error) {
	entries, err := s.cache.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]model.DiagnosticRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Record())
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// merge はリモートの一覧と未確定記録を合流させる。
// 相関IDまたはサーバーIDがリモートに存在する未確定記録は除外し、ローカルを確定済みに補正する。
func (s *Store) merge(ctx context.Context, remote []model.RemoteDiagnostic, pending []localcache.Entry) []model.DiagnosticRecord {
	byRef := make(map[string]string, len(remote))
	byID := make(map[string]bool, len(remote))
	for _, r := range remote {
		if r.ClientRef != "" {
			byRef[r.ClientRef] = r.Record.ID
		}
		byID[r.Record.ID] = true
	}

	records := make([]model.DiagnosticRecord, 0, len(remote)+len(pending))
	for _, e := range pending {
		if remoteID, ok := byRef[e.CorrelationID]; ok {
			s.confirm(ctx, e, remoteID)
			continue
		}
		if e.RemoteID != "" && byID[e.RemoteID] {
			continue
		}
		records = append(records, e.Record())
	}
	for _, r := range remote {
		records = append(records, r.Record)
	}

	// 未確定記録を先に並べてから安定ソートするため、同時刻では未確定記録が先になる
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// GetByID はIDで診断記録を取得する。
// 未確定IDは常にローカルから解決する。それ以外は認証済みならリモートから、未認証ならローカルから取得する。
func (s *Store) GetByID(ctx context.Context, id string) (model.DiagnosticRecord, error) {
	token := s.session.Token()
	if model.IsPendingID(id) || token == "" {
		entry, err := s.cache.FindByVisibleID(ctx, id)
		if err != nil {
			return model.DiagnosticRecord{}, err
		}
		if entry == nil {
			return model.DiagnosticRecord{}, model.NewNotFoundError(id)
		}
		return entry.Record(), nil
	}

	d, err := s.remote.GetDiagnostic(ctx, token, id)
	if err != nil {
		if model.HasCode(err, model.ErrCodeAuthExpired) {
			s.expire("get")
		}
		return model.DiagnosticRecord{}, err
	}
	return d.Record, nil
}

// SyncPending は未確定記録をリモートに再送する。未認証の場合は何もしない。
func (s *Store) SyncPending(ctx context.Context) (SyncReport, error) {
	token := s.session.Token()
	if token == "" {
		return SyncReport{}, nil
	}
	report, err := s.syncPending(ctx, token)
	if err != nil && model.HasCode(err, model.ErrCodeAuthExpired) {
		s.expire("sync")
	}
	return report, err
}

// syncPending は同時に呼び出された再送を1回にまとめる。
func (s *Store) syncPending(ctx context.Context, token string) (SyncReport, error) {
	v, err, _ := s.flights.Do("sync", func() (any, error) {
		return s.flush(ctx, token)
	})
	report, _ := v.(SyncReport)
	return report, err
}

// flush は未確定記録を古い順に登録する。
// 認証エラーまたは通信エラーの時点で中断し、残りは次回に持ち越す。
func (s *Store) flush(ctx context.Context, token string) (SyncReport, error) {
	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	var firstErr error
	for _, e := range pending {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}
		report.Attempted++
		if _, err := s.push(ctx, token, e); err != nil {
			report.Failed++
			if firstErr == nil {
				firstErr = err
			}
			if model.HasCategory(err, model.CategoryAuth) || model.HasCategory(err, model.CategoryNetwork) {
				break
			}
			continue
		}
		report.Confirmed++
	}
	report.Remaining = len(pending) - report.Confirmed

	if report.Attempted > 0 {
		s.logger.Info("未確定記録を再送しました",
			slog.Int("attempted", report.Attempted),
			slog.Int("confirmed", report.Confirmed),
			slog.Int("failed", report.Failed),
			slog.Int("remaining", report.Remaining),
		)
		if s.recorder != nil {
			s.recorder.RecordSync(report.Confirmed, report.Failed)
		}
	}
	if s.recorder != nil {
		s.recorder.SetPendingRecords(report.Remaining)
	}
	return report, firstErr
}

// expire はトークン失効時にセッションを破棄する。
func (s *Store) expire(source string) {
	s.logger.Warn("トークンが失効したためログアウトします", slog.String("source", source))
	if s.recorder != nil {
		s.recorder.RecordAuthExpired(source)
	}
	s.session.Logout()
}

func (s *Store) reportPending(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return
	}
	s.recorder.SetPendingRecords(len(pending))
}
