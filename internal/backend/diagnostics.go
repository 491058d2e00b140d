package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/hitoshi/dermadash/internal/model"
)

// Predict は画像を送信し、分類結果を返す。
// 確率ベクトルが不正なレスポンスはServerErrorとして扱う。
func (c *Client) Predict(ctx context.Context, token, filename, mimeType string, data []byte) (*model.PredictionResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("画像データの書き込みに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/predict/",
		endpoint:    "/api/predict/",
		token:       token,
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError(resp, "")
	}

	var pp predictionPayload
	if err := decode(resp, &pp); err != nil {
		return nil, err
	}
	result, err := pp.toModel()
	if err != nil {
		return nil, model.NewServerError(resp.status, fmt.Sprintf("不正な予測結果です: %v", err))
	}
	return &result, nil
}

// ListDiagnostics はユーザーの診断履歴を取得する。
// ページネーション形式（{"results": [...]}）と配列形式の両方を受け付ける。
// 変換できない要素は警告ログを出力して除外する。
func (c *Client) ListDiagnostics(ctx context.Context, token string) ([]model.RemoteDiagnostic, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/api/diagnostics/",
		endpoint: "/api/diagnostics/",
		token:    token,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError(resp, "")
	}

	items, err := decodeList(resp)
	if err != nil {
		return nil, err
	}

	result := make([]model.RemoteDiagnostic, 0, len(items))
	for _, item := range items {
		d, err := item.toModel()
		if err != nil {
			c.logger.Warn("診断記録の変換に失敗しました",
				slog.String("id", string(item.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func decodeList(resp *response) ([]diagnosticPayload, error) {
	var items []diagnosticPayload
	if err := json.Unmarshal(resp.body, &items); err == nil {
		return items, nil
	}
	var page struct {
		Results []diagnosticPayload `json:"results"`
	}
	if err := decode(resp, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// GetDiagnostic は指定IDの診断記録を取得する。存在しない場合はNotFound。
func (c *Client) GetDiagnostic(ctx context.Context, token, id string) (*model.RemoteDiagnostic, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/api/diagnostics/" + url.PathEscape(id) + "/",
		endpoint: "/api/diagnostics/{id}/",
		token:    token,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError(resp, id)
	}

	var p diagnosticPayload
	if err := decode(resp, &p); err != nil {
		return nil, err
	}
	d, err := p.toModel()
	if err != nil {
		return nil, model.NewServerError(resp.status, fmt.Sprintf("不正な診断記録です: %v", err))
	}
	return &d, nil
}

// CreateDiagnostic は診断記録をリモートに登録する。
// 相関IDをIdempotency-Keyとして送信し、再送時の重複登録を防ぐ。
func (c *Client) CreateDiagnostic(ctx context.Context, token string, in model.NewRemoteDiagnostic) (*model.RemoteDiagnostic, error) {
	var headers map[string]string
	if in.ClientRef != "" {
		headers = map[string]string{"Idempotency-Key": in.ClientRef}
	}
	resp, err := c.doJSON(ctx, request{
		method:   http.MethodPost,
		path:     "/api/diagnostics/",
		endpoint: "/api/diagnostics/",
		token:    token,
		headers:  headers,
	}, newCreatePayload(in))
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError(resp, "")
	}

	var p diagnosticPayload
	if err := decode(resp, &p); err != nil {
		return nil, err
	}
	// 旧サーバーはclient_refを返さないため、送信した値で補う
	if p.ClientRef == "" {
		p.ClientRef = in.ClientRef
	}
	if p.Date == "" && p.DiagnosisDate == "" && p.CreatedAt == "" {
		p.CreatedAt = newCreatePayload(in).DiagnosisDate
	}
	d, err := p.toModel()
	if err != nil {
		return nil, model.NewServerError(resp.status, fmt.Sprintf("不正な診断記録です: %v", err))
	}
	return &d, nil
}
