package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/view"
)

func TestViewHandler_Navigate(t *testing.T) {
	nav := &mockNavigator{current: model.ViewHome}
	h := NewViewHandler(nav)

	w := httptest.NewRecorder()
	h.Navigate(w, httptest.NewRequest(http.MethodPost, "/api/navigate", jsonBody(`{"view":"history"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body viewResponse
	decodeBody(t, w, &body)
	if body.View != model.ViewHistory {
		t.Errorf("view = %q, want %q", body.View, model.ViewHistory)
	}
	if body.Transition == nil || body.Transition.From != model.ViewHome || body.Transition.To != model.ViewHistory {
		t.Errorf("transition = %+v", body.Transition)
	}
}

func TestViewHandler_Navigate_UnknownView(t *testing.T) {
	h := NewViewHandler(&mockNavigator{current: model.ViewHome})

	w := httptest.NewRecorder()
	h.Navigate(w, httptest.NewRequest(http.MethodPost, "/api/navigate", jsonBody(`{"view":"settings"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeInvalidInput {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidInput)
	}
}

func TestViewHandler_Navigate_QueuedReturnsAccepted(t *testing.T) {
	nav := &mockNavigator{
		current: model.ViewAuth,
		navigateFn: func(ctx context.Context, v model.ViewState) (view.Transition, error) {
			return view.Transition{From: model.ViewAuth, To: model.ViewAuth, Queued: true}, nil
		},
	}
	h := NewViewHandler(nav)

	w := httptest.NewRecorder()
	h.Navigate(w, httptest.NewRequest(http.MethodPost, "/api/navigate", jsonBody(`{"view":"results"}`)))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestViewHandler_Navigate_RecordID(t *testing.T) {
	nav := &mockNavigator{current: model.ViewHome}
	h := NewViewHandler(nav)

	w := httptest.NewRecorder()
	h.Navigate(w, httptest.NewRequest(http.MethodPost, "/api/navigate", jsonBody(`{"record_id":"srv-1"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body viewResponse
	decodeBody(t, w, &body)
	if body.SelectedRecordID != "srv-1" {
		t.Errorf("selected_record_id = %q, want %q", body.SelectedRecordID, "srv-1")
	}
}

func TestViewHandler_Navigate_AuthExpired(t *testing.T) {
	nav := &mockNavigator{
		current: model.ViewHome,
		navigateFn: func(ctx context.Context, v model.ViewState) (view.Transition, error) {
			return view.Transition{From: model.ViewHome, To: model.ViewAuth, Redirected: true}, model.NewAuthExpiredError()
		},
	}
	h := NewViewHandler(nav)

	w := httptest.NewRecorder()
	h.Navigate(w, httptest.NewRequest(http.MethodPost, "/api/navigate", jsonBody(`{"view":"results"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeAuthExpired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeAuthExpired)
	}
}

func TestViewHandler_Get(t *testing.T) {
	nav := &mockNavigator{current: model.ViewResults}
	h := NewViewHandler(nav)

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/view", nil))

	var body viewResponse
	decodeBody(t, w, &body)
	if body.View != model.ViewResults {
		t.Errorf("view = %q, want %q", body.View, model.ViewResults)
	}
	if body.Transition != nil {
		t.Errorf("transition = %+v, want nil", body.Transition)
	}
	if nav.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", nav.refreshes)
	}

	w = httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/view?refresh=true", nil))
	if nav.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", nav.refreshes)
	}
}
