// Package auth は認証トークンのライフサイクルとセッション状態を管理する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/dermadash/internal/backend"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/repository"
)

// Authenticator はリモートの認証エンドポイントのインターフェース。
// テスト時にモックに差し替え可能。
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResult, error)
	Register(ctx context.Context, reg model.Registration) (*backend.AuthResult, error)
	Profile(ctx context.Context, token string) (*model.UserProfile, error)
}

var _ Authenticator = (*backend.Client)(nil)

// Listener はセッション状態の変化を受け取るコールバック。
type Listener = func(model.SessionState)

// Service はセッション（トークン、ユーザー情報、認証状態）を所有する。
// 状態は自身のメソッドからのみ変更され、他のコンポーネントは読み取り専用で参照する。
type Service struct {
	client Authenticator
	tokens repository.TokenRepository
	logger *slog.Logger

	mu        sync.Mutex
	state     model.SessionState
	token     string
	user      *model.UserProfile
	gen       uint64 // 状態変更のたびに増加し、古い検証結果の適用を防ぐ
	listeners map[uint64]Listener
	nextLID   uint64
}

// NewService はServiceを生成する。初期状態はAnonymous。
func NewService(client Authenticator, tokens repository.TokenRepository, logger *slog.Logger) *Service {
	return &Service{
		client:    client,
		tokens:    tokens,
		logger:    logger,
		state:     model.SessionAnonymous,
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe は状態変化のリスナーを登録し、解除関数を返す。
// リスナーはロックを解放した後に呼び出される。
func (s *Service) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// State は現在の認証状態を返す。
func (s *Service) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token は現在のトークンを返す。認証済みでない場合は空文字列。
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.SessionAuthenticated {
		return ""
	}
	return s.token
}

// User は現在のユーザー情報を返す。認証済みでない場合はnil。
func (s *Service) User() *model.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Login はメールアドレスとパスワードで認証する。
// 失敗時は状態をAnonymousのまま維持する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	if email == "" || password == "" {
		var fields []string
		if email == "" {
			fields = append(fields, "email")
		}
		if password == "" {
			fields = append(fields, "password")
		}
		return nil, model.NewInvalidInputError(fields)
	}

	res, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("ログインに失敗しました", slog.String("error", err.Error()))
		return nil, err
	}
	return s.establish(ctx, res), nil
}

// Register はユーザーを新規登録し、そのまま認証済みにする。
// 入力はネットワーク呼び出しの前に検証する。
func (s *Service) Register(ctx context.Context, reg model.Registration) (*model.UserProfile, error) {
	if err := ValidateRegistration(reg); err != nil {
		return nil, err
	}

	res, err := s.client.Register(ctx, reg)
	if err != nil {
		s.logger.Warn("ユーザー登録に失敗しました", slog.String("error", err.Error()))
		return nil, err
	}
	return s.establish(ctx, res), nil
}

// establish はトークンを永続化し、認証済み状態に遷移する。
// 永続化の失敗はログに記録し、メモリ上のセッションは確立する。
func (s *Service) establish(ctx context.Context, res *backend.AuthResult) *model.UserProfile {
	if err := s.tokens.Save(ctx, res.Token); err != nil {
		s.logger.Error("トークンの保存に失敗しました", slog.String("error", err.Error()))
	}

	user := res.User
	s.mu.Lock()
	s.gen++
	s.token = res.Token
	s.user = &user
	notify := s.setStateLocked(model.SessionAuthenticated)
	s.mu.Unlock()

	notify()
	s.logger.Info("ログインしました", slog.String("user_id", user.ID))
	u := user
	return &u
}

// Verify は永続化されたトークンを検証する。起動時に1回呼び出す。
// トークンがなければ何もしない。検証に失敗した場合はトークンを削除してエラーを返す。
func (s *Service) Verify(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Error("トークンの読み込みに失敗しました", slog.String("error", err.Error()))
		return nil
	}
	if token == "" {
		return nil
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.token = token
	s.user = nil
	notify := s.setStateLocked(model.SessionVerifying)
	s.mu.Unlock()
	notify()

	user, verr := s.client.Profile(ctx, token)

	s.mu.Lock()
	if s.gen != gen {
		// 検証中にログアウトまたは再ログインされた
		s.mu.Unlock()
		if verr != nil {
			return verr
		}
		return nil
	}
	if verr != nil {
		s.token = ""
		s.user = nil
		notify = s.setStateLocked(model.SessionAnonymous)
		s.mu.Unlock()

		s.clearPersisted()
		notify()
		s.logger.Warn("トークンの検証に失敗したためセッションを破棄しました",
			slog.String("error", verr.Error()),
		)
		return verr
	}
	s.user = user
	notify = s.setStateLocked(model.SessionAuthenticated)
	s.mu.Unlock()
	notify()

	s.logger.Info("トークンを検証しました", slog.String("user_id", user.ID))
	return nil
}

// Logout はトークンとユーザー情報を同期的に破棄する。失敗しない。
func (s *Service) Logout() {
	s.mu.Lock()
	s.gen++
	wasAuthenticated := s.state != model.SessionAnonymous
	s.token = ""
	s.user = nil
	notify := s.setStateLocked(model.SessionAnonymous)
	s.mu.Unlock()

	s.clearPersisted()
	notify()

	if wasAuthenticated {
		s.logger.Info("ログアウトしました")
	}
}

func (s *Service) clearPersisted() {
	// Logoutはコンテキストを持たないため、永続化の完了を待つ
	if err := s.tokens.Clear(context.Background()); err != nil {
		s.logger.Error("トークンの削除に失敗しました", slog.String("error", err.Error()))
	}
}

// setStateLocked は状態を更新し、リスナーへの通知関数を返す。
// 呼び出し元はロックを保持していること。状態が変わらない場合は何もしない関数を返す。
func (s *Service) setStateLocked(next model.SessionState) func() {
	if s.state == next {
		return func() {}
	}
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(next)
		}
	}
}

// IsAuthError は認証エラー（拒否または期限切れ）かどうかを返す。
func IsAuthError(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Category == model.CategoryAuth
}
