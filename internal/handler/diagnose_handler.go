package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/security"
	"github.com/hitoshi/dermadash/internal/upload"
)

// imageField はmultipartフォームの画像フィールド名。
const imageField = "image"

// multipartOverhead は画像以外のmultipart部分に許容するバイト数。
const multipartOverhead = 64 * 1024

// UploaderInterface は診断ハンドラーが必要とするアップロードパイプラインのインターフェース。
type UploaderInterface interface {
	Select(img upload.Image) error
	Selected() (upload.Image, bool)
	Submit(ctx context.Context, img upload.Image) (model.DiagnosticRecord, error)
	Reset()
}

// DiagnoseHandler は画像のアップロードと診断のHTTPハンドラー。
type DiagnoseHandler struct {
	uploader  UploaderInterface
	navigator NavigatorInterface
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
	maxBytes  int64
}

// NewDiagnoseHandler はDiagnoseHandlerを生成する。maxBytesは受け付ける画像の最大サイズ。
func NewDiagnoseHandler(uploader UploaderInterface, navigator NavigatorInterface, sanitizer security.TextSanitizerService, logger *slog.Logger, maxBytes int64) *DiagnoseHandler {
	return &DiagnoseHandler{
		uploader:  uploader,
		navigator: navigator,
		sanitizer: sanitizer,
		logger:    logger,
		maxBytes:  maxBytes,
	}
}

// selectResponse は画像選択のレスポンス。
type selectResponse struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// Select はプレビュー用に画像を選択する。送信は行わない。
// POST /api/diagnose/select
func (h *DiagnoseHandler) Select(w http.ResponseWriter, r *http.Request) {
	img, ok := h.readImage(w, r)
	if !ok {
		return
	}
	if err := h.uploader.Select(img); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{
		Filename: h.sanitizer.Text(img.Filename),
		MimeType: img.MimeType,
		Size:     len(img.Data),
	})
}

// Submit は画像を送信して診断記録を作成し、結果画面を表示する。
// 画像フィールドがない場合は選択済みの画像を送信する。成功時は選択を解除する。
// POST /api/diagnose
func (h *DiagnoseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var img upload.Image
	if isMultipart(r) {
		var ok bool
		img, ok = h.readImage(w, r)
		if !ok {
			return
		}
	} else {
		selected, ok := h.uploader.Selected()
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyImageError())
			return
		}
		img = selected
	}

	rec, err := h.uploader.Submit(r.Context(), img)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.uploader.Reset()

	if _, err := h.navigator.ShowRecord(r.Context(), rec.ID); err != nil {
		// 記録は作成済みのため、表示の失敗はログのみ
		h.logger.Warn("診断結果の表示に失敗しました",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusCreated, newRecordResponse(h.sanitizer, rec))
}

// readImage はmultipartフォームから画像を読み込む。失敗時はレスポンスを書き込みfalseを返す。
func (h *DiagnoseHandler) readImage(w http.ResponseWriter, r *http.Request) (upload.Image, bool) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	}

	file, header, err := r.FormFile(imageField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(r.ContentLength, h.maxBytes))
			return upload.Image{}, false
		}
		if errors.Is(err, http.ErrMissingFile) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyImageError())
			return upload.Image{}, false
		}
		writeInvalidRequest(w)
		return upload.Image{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(r.ContentLength, h.maxBytes))
			return upload.Image{}, false
		}
		writeInvalidRequest(w)
		return upload.Image{}, false
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return upload.Image{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	}, true
}

// isMultipart はリクエストがmultipartフォームかどうかを返す。
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
