package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/security"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	State() model.SessionState
	User() *model.UserProfile
	Login(ctx context.Context, email, password string) (*model.UserProfile, error)
	Register(ctx context.Context, reg model.Registration) (*model.UserProfile, error)
	Logout()
}

// SessionHandler はログイン・登録・ログアウトのHTTPハンドラー。
type SessionHandler struct {
	service   SessionServiceInterface
	sanitizer security.TextSanitizerService
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, sanitizer security.TextSanitizerService) *SessionHandler {
	return &SessionHandler{
		service:   service,
		sanitizer: sanitizer,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Get は現在のセッション状態を返す。
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if _, err := h.service.Login(r.Context(), req.Email, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.current())
}

// Register は新規ユーザーを登録し、ログイン状態にする。
// POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if _, err := h.service.Register(r.Context(), req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.current())
}

// Logout はセッションを破棄する。冪等。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) current() sessionResponse {
	return sessionResponse{
		State: h.service.State().String(),
		User:  newUserResponse(h.sanitizer, h.service.User()),
	}
}
