// Package upload は画像の検証、予測の送信、結果の保存を行うアップロードパイプラインを提供する。
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/dermadash/internal/diagnostic"
	"github.com/hitoshi/dermadash/internal/model"
)

// Outcome はアップロード結果の分類。メトリクスのラベルに使用する。
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeAuth       = "auth_expired"
	OutcomeNetwork    = "network_error"
	OutcomeServer     = "server_error"
)

// Image はアップロード対象の画像。
type Image struct {
	Filename string
	MimeType string
	Data     []byte
}

// Predictor は画像分類サービスのインターフェース。
type Predictor interface {
	Predict(ctx context.Context, token, filename, mimeType string, data []byte) (*model.PredictionResult, error)
}

// RecordCreator は診断記録の保存先のインターフェース。
type RecordCreator interface {
	Create(ctx context.Context, in diagnostic.CreateInput) (model.DiagnosticRecord, error)
}

// Session はパイプラインが参照するセッションの読み取り専用ビュー。
type Session interface {
	Token() string
	Logout()
}

// Recorder はアップロード結果を記録するインターフェース。
type Recorder interface {
	RecordUpload(outcome string, duration time.Duration)
}

// Config はパイプラインの設定。
type Config struct {
	// MaxBytes は受け付ける画像の最大サイズ。0以下の場合は制限しない。
	MaxBytes int64
	// ThumbnailMaxBytes はサムネイルとして保存する画像の最大サイズ。
	ThumbnailMaxBytes int64
}

// Pipeline はアップロードパイプライン。セッションごとに1つ生成する。
type Pipeline struct {
	predictor Predictor
	store     RecordCreator
	session   Session
	logger    *slog.Logger
	recorder  Recorder
	config    Config

	inFlight atomic.Bool

	mu       sync.Mutex
	selected *Image
}

// NewPipeline はPipelineを生成する。recorderはnilでもよい。
func NewPipeline(predictor Predictor, store RecordCreator, session Session, logger *slog.Logger, recorder Recorder, config Config) *Pipeline {
	return &Pipeline{
		predictor: predictor,
		store:     store,
		session:   session,
		logger:    logger,
		recorder:  recorder,
		config:    config,
	}
}

// Validate はネットワーク呼び出しなしで画像を検証する。
func (p *Pipeline) Validate(img Image) error {
	if !strings.HasPrefix(strings.ToLower(img.MimeType), "image/") {
		return model.NewInvalidMediaTypeError(img.MimeType)
	}
	if len(img.Data) == 0 {
		return model.NewEmptyImageError()
	}
	if p.config.MaxBytes > 0 && int64(len(img.Data)) > p.config.MaxBytes {
		return model.NewImageTooLargeError(int64(len(img.Data)), p.config.MaxBytes)
	}
	return nil
}

// Select はプレビュー用に画像を選択する。不正な画像は選択しない。
func (p *Pipeline) Select(img Image) error {
	if err := p.Validate(img); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = &img
	return nil
}

// Selected は選択中の画像を返す。
func (p *Pipeline) Selected() (Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return Image{}, false
	}
	return *p.selected, true
}

// Reset は選択中の画像とプレビューを破棄する。送信中の処理には影響しない。
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = nil
}

// InFlight は送信中かどうかを返す。
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

// Submit は画像を送信して予測を受け取り、診断記録として保存する。
// 同時に送信できるのは1件のみで、送信中の呼び出しはAlreadyInProgressエラーとなる。
// 失敗時は記録を作成せず、自動再送も行わない。
func (p *Pipeline) Submit(ctx context.Context, img Image) (model.DiagnosticRecord, error) {
	start := time.Now()

	if err := p.Validate(img); err != nil {
		p.record(OutcomeValidation, start)
		return model.DiagnosticRecord{}, err
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.record(OutcomeValidation, start)
		return model.DiagnosticRecord{}, model.NewAlreadyInProgressError()
	}
	defer p.inFlight.Store(false)

	pred, err := p.predictor.Predict(ctx, p.session.Token(), img.Filename, img.MimeType, img.Data)
	if err != nil {
		return model.DiagnosticRecord{}, p.fail(err, start)
	}
	if err := pred.Probabilities.Validate(); err != nil {
		return model.DiagnosticRecord{}, p.fail(model.NewServerError(0, fmt.Sprintf("不正な予測結果です: %v", err)), start)
	}

	rec, err := p.store.Create(ctx, diagnostic.CreateInput{
		Prediction: *pred,
		Thumbnail:  p.thumbnail(img),
	})
	if err != nil {
		p.record(OutcomeServer, start)
		return model.DiagnosticRecord{}, fmt.Errorf("診断記録の保存に失敗しました: %w", err)
	}

	p.record(OutcomeSuccess, start)
	p.logger.Info("画像の診断が完了しました",
		slog.String("record_id", rec.ID),
		slog.String("class_label", rec.ClassLabel.String()),
		slog.Float64("confidence", rec.ConfidencePercent),
		slog.Bool("pending", rec.Pending),
	)
	return rec, nil
}

// fail は予測の失敗を分類して記録する。401の場合はセッションを破棄する。
func (p *Pipeline) fail(err error, start time.Time) error {
	switch {
	case model.HasCode(err, model.ErrCodeAuthExpired):
		p.record(OutcomeAuth, start)
		p.logger.Warn("予測中にトークンが失効したためログアウトします")
		p.session.Logout()
	case model.HasCategory(err, model.CategoryNetwork):
		p.record(OutcomeNetwork, start)
	default:
		p.record(OutcomeServer, start)
	}
	p.logger.Error("画像の診断に失敗しました", slog.String("error", err.Error()))
	return err
}

// thumbnail は元画像のdata URLを返す。上限を超える場合は空文字列。
// 画像のデコードや縮小は行わない。
func (p *Pipeline) thumbnail(img Image) string {
	if p.config.ThumbnailMaxBytes > 0 && int64(len(img.Data)) > p.config.ThumbnailMaxBytes {
		return ""
	}
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (p *Pipeline) record(outcome string, start time.Time) {
	if p.recorder != nil {
		p.recorder.RecordUpload(outcome, time.Since(start))
	}
}
