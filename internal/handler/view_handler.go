package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/view"
)

// NavigatorInterface は画面遷移ハンドラーが必要とするルーターインターフェース。
type NavigatorInterface interface {
	Navigate(ctx context.Context, v model.ViewState) (view.Transition, error)
	ShowRecord(ctx context.Context, id string) (view.Transition, error)
	Refresh(ctx context.Context) (view.Transition, error)
	Current() model.ViewState
	SelectedRecordID() string
}

// ViewHandler は画面遷移のHTTPハンドラー。描画結果はWebSocketで配信される。
type ViewHandler struct {
	navigator NavigatorInterface
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(navigator NavigatorInterface) *ViewHandler {
	return &ViewHandler{navigator: navigator}
}

// navigateRequest は画面遷移リクエストのボディ。RecordIDを指定すると詳細表示になる。
type navigateRequest struct {
	View     string `json:"view"`
	RecordID string `json:"record_id,omitempty"`
}

// viewResponse は現在の画面状態のレスポンス。
type viewResponse struct {
	View             model.ViewState  `json:"view"`
	SelectedRecordID string           `json:"selected_record_id,omitempty"`
	Transition       *view.Transition `json:"transition,omitempty"`
}

// Get は現在の画面を返す。refresh=true の場合は再描画する。
// GET /api/view
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	var t *view.Transition
	if r.URL.Query().Get("refresh") == "true" {
		tr, err := h.navigator.Refresh(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		t = &tr
	}
	writeJSON(w, http.StatusOK, viewResponse{
		View:             h.navigator.Current(),
		SelectedRecordID: h.navigator.SelectedRecordID(),
		Transition:       t,
	})
}

// Navigate は画面を遷移する。
// POST /api/navigate
func (h *ViewHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	var (
		t   view.Transition
		err error
	)
	if req.RecordID != "" {
		t, err = h.navigator.ShowRecord(r.Context(), req.RecordID)
	} else {
		v, perr := model.ParseViewState(req.View)
		if perr != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError([]string{"view"}))
			return
		}
		t, err = h.navigator.Navigate(r.Context(), v)
	}
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if t.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, viewResponse{
		View:             h.navigator.Current(),
		SelectedRecordID: h.navigator.SelectedRecordID(),
		Transition:       &t,
	})
}
