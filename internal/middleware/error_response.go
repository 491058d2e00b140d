package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/dermadash/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はエラーの種別に応じたステータスコードで統一エラーレスポンスを書き込む。
// APIError以外のエラーは内部エラーとして扱う。
func WriteError(w http.ResponseWriter, err error) {
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForError(apiErr), apiErr)
}

// StatusForError はAPIErrorのカテゴリとコードをHTTPステータスコードに変換する。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Category {
	case model.CategoryValidation:
		switch apiErr.Code {
		case model.ErrCodeAlreadyInProgress:
			return http.StatusConflict
		case model.ErrCodeImageTooLarge:
			return http.StatusRequestEntityTooLarge
		case model.ErrCodeInvalidMediaType:
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case model.CategoryAuth:
		return http.StatusUnauthorized
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryNetwork:
		return http.StatusBadGateway
	case model.CategoryServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
