// Package backend はリモート診断サービスのRESTクライアントを提供する。
// 認証、画像の予測、診断履歴の取得と登録を扱う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/dermadash/internal/model"
)

const (
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 8 << 20
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "Dermadash/1.0"
)

// RequestRecorder はリモート呼び出しの結果を記録するインターフェース。
// statusCodeは通信エラー時に0となる。
type RequestRecorder interface {
	RecordRemoteRequest(endpoint string, statusCode int, duration time.Duration)
}

// ClientConfig はクライアントの設定。
type ClientConfig struct {
	// BaseURL はAPIのベースURL（例: http://localhost:8000）。末尾スラッシュなし。
	BaseURL string
	// RateLimit は1秒あたりの最大リクエスト数。0以下の場合は制限しない。
	RateLimit float64
	// RateBurst はバーストサイズ。
	RateBurst int
}

// Client はリモート診断サービスのクライアント。
// トークンはSessionが所有し、呼び出しごとに引数で受け取る。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
	recorder   RequestRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewClient(httpClient *http.Client, cfg ClientConfig, logger *slog.Logger, recorder RequestRecorder) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    limiter,
		recorder:   recorder,
	}
}

// request は1回のAPI呼び出しを表す。
type request struct {
	method      string
	path        string
	endpoint    string // メトリクス用の正規化済みパス
	token       string
	body        io.Reader
	contentType string
	headers     map[string]string
}

// response はステータスとボディを保持する。
type response struct {
	status int
	body   []byte
}

// do はレート制限の後にHTTPリクエストを実行し、ボディを読み取って返す。
// 通信失敗はNetworkErrorとして返す。ステータスの解釈は呼び出し元が行う。
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewNetworkError(err)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(r.endpoint, 0, time.Since(start))
		c.logger.Error("リモートAPIの呼び出しに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.record(r.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("リモートAPIがエラーステータスを返しました",
			slog.String("endpoint", r.endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
	}

	return &response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) record(endpoint string, status int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordRemoteRequest(endpoint, status, d)
	}
}

// doJSON はJSONボディを送信するリクエストを実行する。
func (c *Client) doJSON(ctx context.Context, r request, payload any) (*response, error) {
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
		}
		r.body = bytes.NewReader(b)
		r.contentType = "application/json"
	}
	return c.do(ctx, r)
}

// statusError は保護されたエンドポイントの非2xxレスポンスをエラーに変換する。
// 401はAuthExpired、404はNotFound、それ以外はServerError。
func statusError(resp *response, id string) error {
	switch resp.status {
	case http.StatusUnauthorized:
		return model.NewAuthExpiredError()
	case http.StatusNotFound:
		return model.NewNotFoundError(id)
	default:
		return model.NewServerError(resp.status, errorMessage(resp.body))
	}
}

// errorMessage はエラーレスポンスからユーザー向けメッセージを取り出す。
// detail、errorの順に参照し、どちらもなければフィールドエラーを連結、最後にボディ全体を返す。
func errorMessage(body []byte) string {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return strings.TrimSpace(string(body))
	}

	for _, key := range []string{"detail", "error"} {
		if raw, ok := generic[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}

	if msg := flattenFieldErrors(generic); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(body))
}

// isSuccess は2xxかどうかを返す。
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// decode はレスポンスボディをJSONとしてデコードする。
// 失敗時はサーバー契約違反としてServerErrorを返す。
func decode(resp *response, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		return model.NewServerError(resp.status, fmt.Sprintf("レスポンスJSONのパースに失敗しました: %v", err))
	}
	return nil
}
