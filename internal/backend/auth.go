package backend

import (
	"context"
	"net/http"

	"github.com/hitoshi/dermadash/internal/model"
)

// AuthResult はログイン・登録の成功レスポンス。
type AuthResult struct {
	Token string
	User  model.UserProfile
}

// authResponse は /api/auth/login/ と /api/auth/register/ のレスポンス。
type authResponse struct {
	AccessToken string      `json:"access_token"`
	Token       string      `json:"token"`
	User        userPayload `json:"user"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はメールアドレスとパスワードで認証し、トークンとユーザー情報を返す。
// 4xxはAuthRejectedとして、サーバーのメッセージをそのまま保持する。
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	resp, err := c.doJSON(ctx, request{
		method:   http.MethodPost,
		path:     "/api/auth/login/",
		endpoint: "/api/auth/login/",
	}, credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return decodeAuth(resp)
}

// Register はユーザーを新規登録し、トークンとユーザー情報を返す。
// フィールドごとのエラーは1つのメッセージに連結される。
func (c *Client) Register(ctx context.Context, reg model.Registration) (*AuthResult, error) {
	resp, err := c.doJSON(ctx, request{
		method:   http.MethodPost,
		path:     "/api/auth/register/",
		endpoint: "/api/auth/register/",
	}, reg)
	if err != nil {
		return nil, err
	}
	return decodeAuth(resp)
}

func decodeAuth(resp *response) (*AuthResult, error) {
	if resp.status >= 400 && resp.status < 500 {
		return nil, model.NewAuthRejectedError(resp.status, errorMessage(resp.body))
	}
	if !isSuccess(resp.status) {
		return nil, model.NewServerError(resp.status, errorMessage(resp.body))
	}

	var ar authResponse
	if err := decode(resp, &ar); err != nil {
		return nil, err
	}
	token := ar.AccessToken
	if token == "" {
		token = ar.Token
	}
	if token == "" {
		return nil, model.NewServerError(resp.status, "レスポンスにトークンが含まれていません")
	}
	return &AuthResult{Token: token, User: ar.User.toModel()}, nil
}

// Profile はトークンに対応するユーザー情報を取得する。
// 401はAuthExpiredを返す。
func (c *Client) Profile(ctx context.Context, token string) (*model.UserProfile, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/api/auth/profile/",
		endpoint: "/api/auth/profile/",
		token:    token,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError(resp, "")
	}

	var up userPayload
	if err := decode(resp, &up); err != nil {
		return nil, err
	}
	u := up.toModel()
	return &u, nil
}
