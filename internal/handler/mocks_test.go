package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/upload"
	"github.com/hitoshi/dermadash/internal/view"
)

// --- モック定義 ---

type mockSessionService struct {
	state      model.SessionState
	user       *model.UserProfile
	loginFn    func(ctx context.Context, email, password string) (*model.UserProfile, error)
	registerFn func(ctx context.Context, reg model.Registration) (*model.UserProfile, error)
	logouts    int
}

var _ SessionServiceInterface = (*mockSessionService)(nil)

func (m *mockSessionService) State() model.SessionState { return m.state }
func (m *mockSessionService) User() *model.UserProfile  { return m.user }

func (m *mockSessionService) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	if m.loginFn != nil {
		u, err := m.loginFn(ctx, email, password)
		if err == nil {
			m.state, m.user = model.SessionAuthenticated, u
		}
		return u, err
	}
	return nil, nil
}

func (m *mockSessionService) Register(ctx context.Context, reg model.Registration) (*model.UserProfile, error) {
	if m.registerFn != nil {
		u, err := m.registerFn(ctx, reg)
		if err == nil {
			m.state, m.user = model.SessionAuthenticated, u
		}
		return u, err
	}
	return nil, nil
}

func (m *mockSessionService) Logout() {
	m.logouts++
	m.state, m.user = model.SessionAnonymous, nil
}

type mockNavigator struct {
	mu         sync.Mutex
	current    model.ViewState
	selected   string
	navigateFn func(ctx context.Context, v model.ViewState) (view.Transition, error)
	showFn     func(ctx context.Context, id string) (view.Transition, error)
	refreshes  int
	shown      []string
}

var _ NavigatorInterface = (*mockNavigator)(nil)
var _ NavigatorInterface = (*view.Router)(nil)

func (m *mockNavigator) Navigate(ctx context.Context, v model.ViewState) (view.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.navigateFn != nil {
		return m.navigateFn(ctx, v)
	}
	t := view.Transition{From: m.current, To: v}
	m.current = v
	return t, nil
}

func (m *mockNavigator) ShowRecord(ctx context.Context, id string) (view.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = append(m.shown, id)
	if m.showFn != nil {
		return m.showFn(ctx, id)
	}
	t := view.Transition{From: m.current, To: model.ViewHistory}
	m.current, m.selected = model.ViewHistory, id
	return t, nil
}

func (m *mockNavigator) Refresh(ctx context.Context) (view.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return view.Transition{From: m.current, To: m.current}, nil
}

func (m *mockNavigator) Current() model.ViewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockNavigator) SelectedRecordID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

type mockUploader struct {
	selectFn func(img upload.Image) error
	submitFn func(ctx context.Context, img upload.Image) (model.DiagnosticRecord, error)
	selected *upload.Image
	submits  []upload.Image
	resets   int
}

var _ UploaderInterface = (*mockUploader)(nil)
var _ UploaderInterface = (*upload.Pipeline)(nil)

func (m *mockUploader) Select(img upload.Image) error {
	if m.selectFn != nil {
		if err := m.selectFn(img); err != nil {
			return err
		}
	}
	m.selected = &img
	return nil
}

func (m *mockUploader) Selected() (upload.Image, bool) {
	if m.selected == nil {
		return upload.Image{}, false
	}
	return *m.selected, true
}

func (m *mockUploader) Submit(ctx context.Context, img upload.Image) (model.DiagnosticRecord, error) {
	m.submits = append(m.submits, img)
	if m.submitFn != nil {
		return m.submitFn(ctx, img)
	}
	return model.DiagnosticRecord{}, nil
}

func (m *mockUploader) Reset() {
	m.resets++
	m.selected = nil
}

type mockRecordStore struct {
	listFn func(ctx context.Context) ([]model.DiagnosticRecord, error)
	getFn  func(ctx context.Context, id string) (model.DiagnosticRecord, error)
}

var _ RecordStoreInterface = (*mockRecordStore)(nil)

func (m *mockRecordStore) List(ctx context.Context) ([]model.DiagnosticRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockRecordStore) GetByID(ctx context.Context, id string) (model.DiagnosticRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return model.DiagnosticRecord{}, model.NewNotFoundError(id)
}

// --- ヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v (body=%q)", err, w.Body.String())
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func sampleRecord(id string) model.DiagnosticRecord {
	return model.NewDiagnosticRecord(id, model.PredictionResult{
		PredictedClass: "Benign",
		Confidence:     91,
		Probabilities:  model.ProbabilityVector{0.05, 0.91, 0.04},
	}, "data:image/png;base64,iVBORw0KGgo=")
}
