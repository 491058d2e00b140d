package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/security"
)

// RecordStoreInterface は診断記録ハンドラーが必要とするストアのインターフェース。
type RecordStoreInterface interface {
	List(ctx context.Context) ([]model.DiagnosticRecord, error)
	GetByID(ctx context.Context, id string) (model.DiagnosticRecord, error)
}

// RecordHandler は診断記録の参照用HTTPハンドラー。
type RecordHandler struct {
	store     RecordStoreInterface
	sanitizer security.TextSanitizerService
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(store RecordStoreInterface, sanitizer security.TextSanitizerService) *RecordHandler {
	return &RecordHandler{
		store:     store,
		sanitizer: sanitizer,
	}
}

// List はリモートとローカルを統合した診断記録の一覧を返す。
// GET /api/records
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := recordListResponse{
		Records: make([]recordResponse, 0, len(records)),
		Total:   len(records),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, newRecordResponse(h.sanitizer, rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は指定IDの診断記録を返す。
// GET /api/records/{id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordResponse(h.sanitizer, rec))
}
