// Package view は表示中の画面を管理する有限状態機械を提供する。
// 遷移時の入場アクションで診断記録を取得・集計し、結果を描画担当へ渡す。
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/dermadash/internal/aggregate"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/render"
)

// 画面に表示する通知文言。
const (
	noticeEmptyResults = "No diagnoses yet. Upload an image to get started."
	noticeAuthExpired  = "Your session has expired. Please sign in again."
	noticeSignedOut    = "You have been signed out."
)

// Session はルーターが参照するセッションの読み取り専用インターフェース。
type Session interface {
	State() model.SessionState
	User() *model.UserProfile
	Subscribe(l func(model.SessionState)) func()
}

// Store は診断記録の取得インターフェース。
type Store interface {
	List(ctx context.Context) ([]model.DiagnosticRecord, error)
	GetByID(ctx context.Context, id string) (model.DiagnosticRecord, error)
}

// Uploader はアップロード中の選択状態をリセットするインターフェース。
type Uploader interface {
	Reset()
}

// Recorder は画面遷移のメトリクスを記録するインターフェース。
type Recorder interface {
	RecordNavigation(view string)
	RecordChartReleased()
}

// Options はルーターの動作設定。
type Options struct {
	// AllowOffline が有効な場合、未認証でもローカル記録でダッシュボードを表示する。
	AllowOffline bool
}

// Transition は1回の遷移要求の結果を表す。
type Transition struct {
	From       model.ViewState `json:"from"`
	To         model.ViewState `json:"to"`
	Queued     bool            `json:"queued"`
	Redirected bool            `json:"redirected"`
}

// request は遷移要求を表す。recordIDが空でなければ記録の詳細表示。
type request struct {
	ctx      context.Context
	view     model.ViewState
	recordID string
}

// Router は画面遷移を管理する。
type Router struct {
	session  Session
	store    Store
	uploader Uploader
	renderer render.Renderer
	logger   *slog.Logger
	recorder Recorder
	opts     Options

	classSlot *render.ChartSlot
	riskSlot  *render.ChartSlot
	probSlot  *render.ChartSlot

	mu          sync.Mutex
	current     model.ViewState
	selectedID  string
	queue       []request
	unsubscribe func()
}

// NewRouter はRouterを生成し、セッションの状態変化を購読する。
// 初期画面は認証済みならHome、それ以外はAuth。recorderはnilでもよい。
func NewRouter(session Session, store Store, uploader Uploader, renderer render.Renderer, logger *slog.Logger, recorder Recorder, opts Options) *Router {
	r := &Router{
		session:  session,
		store:    store,
		uploader: uploader,
		renderer: renderer,
		logger:   logger,
		recorder: recorder,
		opts:     opts,
		current:  model.ViewAuth,
	}
	onRelease := func(string) {
		if recorder != nil {
			recorder.RecordChartReleased()
		}
	}
	r.classSlot = render.NewChartSlot(aggregate.SlotClassDistribution, renderer, onRelease)
	r.riskSlot = render.NewChartSlot(aggregate.SlotRiskTimeline, renderer, onRelease)
	r.probSlot = render.NewChartSlot(aggregate.SlotProbabilities, renderer, onRelease)

	if session.State() == model.SessionAuthenticated {
		r.current = model.ViewHome
	}
	r.unsubscribe = session.Subscribe(r.onSessionChange)
	return r
}

// Current は表示中の画面を返す。
func (r *Router) Current() model.ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SelectedRecordID は詳細表示中の記録IDを返す。詳細表示中でなければ空文字を返す。
func (r *Router) SelectedRecordID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedID
}

// Navigate は指定した画面へ遷移する。
// セッション検証中の要求はキューに積まれ、検証完了後に順番に再実行される。
func (r *Router) Navigate(ctx context.Context, view model.ViewState) (Transition, error) {
	return r.route(request{ctx: ctx, view: view})
}

// ShowRecord は指定IDの記録を詳細表示する。
// 診断画面にいる場合は診断画面のまま、それ以外は履歴画面で表示する。
func (r *Router) ShowRecord(ctx context.Context, id string) (Transition, error) {
	return r.route(request{ctx: ctx, view: model.ViewHistory, recordID: id})
}

// Refresh は現在の画面を再描画する。
func (r *Router) Refresh(ctx context.Context) (Transition, error) {
	return r.Navigate(ctx, r.Current())
}

// Close は購読を解除し、保持しているグラフをすべて解放する。
func (r *Router) Close() error {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	return errors.Join(r.classSlot.Release(), r.riskSlot.Release(), r.probSlot.Release())
}

func (r *Router) route(req request) (Transition, error) {
	r.mu.Lock()
	from := r.current
	state := r.session.State()
	if state == model.SessionVerifying {
		req.ctx = context.WithoutCancel(req.ctx)
		r.queue = append(r.queue, req)
		r.mu.Unlock()
		r.logger.Debug("セッション検証中のため遷移を保留しました", slog.String("view", string(req.view)))
		return Transition{From: from, To: from, Queued: true}, nil
	}
	target := r.resolve(req.view, state)
	if req.recordID != "" && from == model.ViewDiagnose && target != model.ViewAuth {
		target = model.ViewDiagnose
	}
	r.mu.Unlock()

	if req.recordID != "" && target != model.ViewAuth {
		return r.enterRecord(req.ctx, from, target, req.recordID)
	}
	return r.enter(req.ctx, from, req.view, target)
}

// resolve はセッション状態から実際の遷移先を決定する。
func (r *Router) resolve(view model.ViewState, state model.SessionState) model.ViewState {
	if state == model.SessionAuthenticated {
		if view == model.ViewAuth {
			return model.ViewHome
		}
		return view
	}
	if r.opts.AllowOffline && view != model.ViewAuth {
		return view
	}
	return model.ViewAuth
}

// enter は入場アクションを実行して画面を確定する。
func (r *Router) enter(ctx context.Context, from, requested, target model.ViewState) (Transition, error) {
	frame := render.Frame{View: target}
	var snapshot *model.AggregateSnapshot

	switch target {
	case model.ViewResults:
		records, err := r.store.List(ctx)
		if err != nil {
			return r.fail(from, requested, err)
		}
		if len(records) == 0 {
			r.logger.Info("診断記録がないため診断画面へ遷移します")
			r.uploader.Reset()
			target = model.ViewDiagnose
			frame = render.Frame{View: target, Notice: noticeEmptyResults}
			break
		}
		s := aggregate.Summarize(records)
		snapshot = &s
		frame.Snapshot = snapshot
	case model.ViewHistory:
		records, err := r.store.List(ctx)
		if err != nil {
			return r.fail(from, requested, err)
		}
		frame.Records = records
	case model.ViewDiagnose:
		r.uploader.Reset()
	}

	t := Transition{From: from, To: target, Redirected: target != requested}
	return t, r.commit(frame, snapshot, nil)
}

// enterRecord は記録の詳細表示へ遷移する。
func (r *Router) enterRecord(ctx context.Context, from, target model.ViewState, id string) (Transition, error) {
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return r.fail(from, target, err)
	}
	frame := render.Frame{View: target, Record: &rec}
	return Transition{From: from, To: target}, r.commit(frame, nil, &rec)
}

// fail は入場アクションのエラーを処理する。
// 認証期限切れはAuth画面へ遷移し、それ以外は現在の画面を維持してエラーを返す。
func (r *Router) fail(from, requested model.ViewState, err error) (Transition, error) {
	if !model.HasCode(err, model.ErrCodeAuthExpired) {
		r.logger.Warn("画面遷移に失敗しました",
			slog.String("view", string(requested)),
			slog.String("error", err.Error()),
		)
		return Transition{From: from, To: from}, err
	}

	r.logger.Info("認証期限切れのためAuth画面へ遷移します", slog.String("view", string(requested)))
	frame := render.Frame{View: model.ViewAuth, Notice: noticeAuthExpired}
	if cerr := r.commit(frame, nil, nil); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return Transition{From: from, To: model.ViewAuth, Redirected: true}, err
}

// commit は画面を確定し、不要なグラフを解放してから描画する。
func (r *Router) commit(frame render.Frame, snapshot *model.AggregateSnapshot, rec *model.DiagnosticRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if snapshot == nil {
		errs = append(errs, r.classSlot.Release(), r.riskSlot.Release())
	}
	if rec == nil {
		errs = append(errs, r.probSlot.Release())
		r.selectedID = ""
	} else {
		r.selectedID = rec.ID
	}

	frame.Session = r.session.State()
	frame.User = r.session.User()
	r.current = frame.View
	if r.recorder != nil {
		r.recorder.RecordNavigation(string(frame.View))
	}

	if err := r.renderer.ShowFrame(frame); err != nil {
		errs = append(errs, fmt.Errorf("show frame: %w", err))
	}
	if snapshot != nil {
		errs = append(errs,
			r.classSlot.Draw(aggregate.ClassDistributionChart(*snapshot)),
			r.riskSlot.Draw(aggregate.RiskTimelineChart(*snapshot)),
		)
	}
	if rec != nil {
		errs = append(errs, r.probSlot.Draw(aggregate.ProbabilityChart(*rec)))
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Error("描画に失敗しました",
			slog.String("view", string(frame.View)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// onSessionChange はセッション状態の変化に追従する。
// 検証が完了したら保留中の遷移を再実行し、保留がなければ認証状態に合った画面へ切り替える。
func (r *Router) onSessionChange(state model.SessionState) {
	if state == model.SessionVerifying {
		return
	}

	r.mu.Lock()
	queued := r.queue
	r.queue = nil
	current := r.current
	r.mu.Unlock()

	if len(queued) > 0 {
		for _, req := range queued {
			if _, err := r.route(req); err != nil {
				r.logger.Warn("保留中の遷移に失敗しました",
					slog.String("view", string(req.view)),
					slog.String("error", err.Error()),
				)
			}
		}
		return
	}

	switch {
	case state == model.SessionAuthenticated && current == model.ViewAuth:
		if _, err := r.enter(context.Background(), current, model.ViewHome, model.ViewHome); err != nil {
			r.logger.Warn("ホーム画面への遷移に失敗しました", slog.String("error", err.Error()))
		}
	case state == model.SessionAnonymous && current != model.ViewAuth && !r.opts.AllowOffline:
		if err := r.commit(render.Frame{View: model.ViewAuth, Notice: noticeSignedOut}, nil, nil); err != nil {
			r.logger.Warn("Auth画面への遷移に失敗しました", slog.String("error", err.Error()))
		}
	}
}
