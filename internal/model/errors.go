// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, auth, network, server, not_found
	Action   string // ユーザー向け対処方法
	Status   int    // リモートが返したHTTPステータス（該当する場合のみ）

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryNetwork    = "network"
	CategoryServer     = "server"
	CategoryNotFound   = "not_found"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidMediaType  = "INVALID_MEDIA_TYPE"
	ErrCodeAlreadyInProgress = "ALREADY_IN_PROGRESS"
	ErrCodeEmptyImage        = "EMPTY_IMAGE"
	ErrCodeImageTooLarge     = "IMAGE_TOO_LARGE"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeAuthRejected      = "AUTH_REJECTED"
	ErrCodeAuthExpired       = "AUTH_EXPIRED"
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeServer            = "SERVER_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
)

// NewInvalidMediaTypeError は画像以外のファイルが指定された場合のエラーを生成する。
func NewInvalidMediaTypeError(mimeType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaType,
		Message:  fmt.Sprintf("画像ファイルではありません: %q", mimeType),
		Category: CategoryValidation,
		Action:   "JPEGやPNGなどの画像ファイルを選択してください。",
	}
}

// NewAlreadyInProgressError は解析が既に実行中の場合のエラーを生成する。
func NewAlreadyInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInProgress,
		Message:  "画像の解析が既に実行中です。",
		Category: CategoryValidation,
		Action:   "現在の解析が完了するまでお待ちください。",
	}
}

// NewEmptyImageError は画像データが空の場合のエラーを生成する。
func NewEmptyImageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyImage,
		Message:  "画像データが空です。",
		Category: CategoryValidation,
		Action:   "画像を選択し直してください。",
	}
}

// NewImageTooLargeError は画像サイズが上限を超えた場合のエラーを生成する。
func NewImageTooLargeError(size, limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限を超えています: %d > %d bytes", size, limit),
		Category: CategoryValidation,
		Action:   "より小さい画像を選択してください。",
	}
}

// NewInvalidInputError は入力値検証エラーを生成する。
// fieldsには不正だったフィールド名を渡す。
func NewInvalidInputError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", strings.Join(fields, ", ")),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewAuthRejectedError は認証情報が拒否された場合のエラーを生成する。
// messageにはサーバーが返したメッセージをそのまま渡す。
func NewAuthRejectedError(status int, message string) *APIError {
	if message == "" {
		message = "認証に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeAuthRejected,
		Message:  message,
		Category: CategoryAuth,
		Action:   "メールアドレスとパスワードを確認してください。",
		Status:   status,
	}
}

// NewAuthExpiredError はトークンが無効または期限切れの場合のエラーを生成する。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
		Status:   401,
	}
}

// NewNetworkError は通信エラーを生成する。
func NewNetworkError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  "サーバーに接続できませんでした。",
		Category: CategoryNetwork,
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewServerError はサーバーが2xx以外を返した場合のエラーを生成する。
// messageはサーバーの応答を加工せずに保持する。
func NewServerError(status int, message string) *APIError {
	if message == "" {
		message = "サーバーでエラーが発生しました。"
	}
	return &APIError{
		Code:     ErrCodeServer,
		Message:  message,
		Category: CategoryServer,
		Action:   "しばらく待ってから再度お試しください。",
		Status:   status,
	}
}

// NewNotFoundError は指定した診断記録が見つからない場合のエラーを生成する。
func NewNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された診断記録が見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "診断IDを確認してください。",
		Status:   404,
	}
}

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode はエラーチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// HasCategory はエラーチェーンに指定カテゴリのAPIErrorが含まれるかを返す。
func HasCategory(err error, category string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Category == category
}
