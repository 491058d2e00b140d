// Package model はドメインモデルを定義する。
package model

import "strings"

// Role はユーザーの役割を表す。
type Role string

const (
	// RolePatient は患者ユーザー。
	RolePatient Role = "patient"
	// RoleDoctor は医師ユーザー。
	RoleDoctor Role = "doctor"
)

// UserProfile はリモートから取得したユーザー情報を表す。
// 取得後は不変として扱い、再検証時には丸ごと置き換える。
type UserProfile struct {
	ID                   string `json:"id"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Role                 Role   `json:"role"`
	IdentificationNumber string `json:"identification_number,omitempty"`
	Gender               string `json:"gender,omitempty"`
	Phone                string `json:"phone,omitempty"`
	DateOfBirth          string `json:"date_of_birth,omitempty"`
}

// DisplayName は表示用の氏名を返す。
func (u UserProfile) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Initials はアバター表示用のイニシャルを返す。
func (u UserProfile) Initials() string {
	var b strings.Builder
	for _, name := range []string{u.FirstName, u.LastName} {
		for _, r := range name {
			b.WriteRune(r)
			break
		}
	}
	return strings.ToUpper(b.String())
}

// RoleLabel は役割の表示ラベルを返す。未知の役割は患者として扱う。
func (u UserProfile) RoleLabel() string {
	if u.Role == RoleDoctor {
		return "Doctor"
	}
	return "Patient"
}

// SessionState はセッションの認証状態を表す。
type SessionState int

const (
	// SessionAnonymous は未認証状態。
	SessionAnonymous SessionState = iota
	// SessionVerifying は永続化済みトークンを検証中の状態。
	SessionVerifying
	// SessionAuthenticated は認証済み状態。
	SessionAuthenticated
)

// String はログ出力用の状態名を返す。
func (s SessionState) String() string {
	switch s {
	case SessionVerifying:
		return "verifying"
	case SessionAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Registration は新規登録フォームの入力値を表す。
// validateタグは送信前のクライアント側検証で使用する。
type Registration struct {
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	IdentificationNumber string `json:"identification_number" validate:"required,max=50"`
	Gender               string `json:"gender" validate:"required,oneof=Masculino Femenino Otro"`
	Phone                string `json:"phone" validate:"required,max=20"`
	DateOfBirth          string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Password             string `json:"password" validate:"required,min=8,password_strength"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}
