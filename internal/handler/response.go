// Package handler はダッシュボードAPIのHTTPハンドラーとWebSocket描画ハブを提供する。
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/dermadash/internal/middleware"
	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/security"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeInvalidRequest はリクエストボディの解析失敗を返す。
func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: model.CategoryValidation,
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// --- レスポンス型 ---

// userResponse はユーザー情報のレスポンス。表示用の派生値を含む。
type userResponse struct {
	model.UserProfile
	DisplayName string `json:"display_name"`
	Initials    string `json:"initials"`
	RoleLabel   string `json:"role_label"`
}

// sessionResponse はセッション状態のレスポンス。
type sessionResponse struct {
	State string        `json:"state"`
	User  *userResponse `json:"user,omitempty"`
}

// recordResponse は診断記録のレスポンス。表示用の派生値を含む。
type recordResponse struct {
	model.DiagnosticRecord
	ClassDisplay string `json:"class_display"`
}

// recordListResponse は診断記録一覧のレスポンス。
type recordListResponse struct {
	Records []recordResponse `json:"records"`
	Total   int              `json:"total"`
}

// sanitizeUser はサーバー由来の文字列を無害化したユーザー情報を返す。
func sanitizeUser(s security.TextSanitizerService, u *model.UserProfile) *model.UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.FirstName = s.Text(c.FirstName)
	c.LastName = s.Text(c.LastName)
	c.Email = s.Text(c.Email)
	c.IdentificationNumber = s.Text(c.IdentificationNumber)
	c.Gender = s.Text(c.Gender)
	c.Phone = s.Text(c.Phone)
	c.DateOfBirth = s.Text(c.DateOfBirth)
	return &c
}

// sanitizeRecord は画像のdata URL以外のサムネイルを除去した記録を返す。
func sanitizeRecord(s security.TextSanitizerService, rec model.DiagnosticRecord) model.DiagnosticRecord {
	rec.Thumbnail = s.Thumbnail(rec.Thumbnail)
	return rec
}

func newUserResponse(s security.TextSanitizerService, u *model.UserProfile) *userResponse {
	clean := sanitizeUser(s, u)
	if clean == nil {
		return nil
	}
	return &userResponse{
		UserProfile: *clean,
		DisplayName: clean.DisplayName(),
		Initials:    clean.Initials(),
		RoleLabel:   clean.RoleLabel(),
	}
}

func newRecordResponse(s security.TextSanitizerService, rec model.DiagnosticRecord) recordResponse {
	return recordResponse{
		DiagnosticRecord: sanitizeRecord(s, rec),
		ClassDisplay:     rec.ClassLabel.DisplayName(),
	}
}
