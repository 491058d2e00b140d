// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PendingIDPrefix はリモート未確定の診断記録IDに付与する接頭辞。
const PendingIDPrefix = "local-"

// probabilitySumTolerance は確率ベクトルの合計値に許容する誤差。
const probabilitySumTolerance = 1e-3

// ClassLabel は分類クラスを表す。値は確率ベクトルのインデックスと一致する。
type ClassLabel int

const (
	// ClassMalignant は悪性（メラノーマの疑い）。
	ClassMalignant ClassLabel = iota
	// ClassBenign は良性。
	ClassBenign
	// ClassIndeterminate は判定不能（医師の診察を推奨）。
	ClassIndeterminate
)

// ClassLabels はインデックス順の全クラス。
var ClassLabels = [3]ClassLabel{ClassMalignant, ClassBenign, ClassIndeterminate}

// String はクラスの識別名を返す。
func (c ClassLabel) String() string {
	switch c {
	case ClassMalignant:
		return "malignant"
	case ClassBenign:
		return "benign"
	case ClassIndeterminate:
		return "indeterminate"
	default:
		return fmt.Sprintf("class_%d", int(c))
	}
}

// DisplayName はグラフ等に表示するラベルを返す。
func (c ClassLabel) DisplayName() string {
	switch c {
	case ClassMalignant:
		return "Malignant (suspected melanoma)"
	case ClassBenign:
		return "Benign (not dangerous)"
	default:
		return "Indeterminate (medical evaluation recommended)"
	}
}

// MarshalText はJSON等へのテキスト表現を返す。
func (c ClassLabel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText はテキスト表現からクラスを復元する。
func (c *ClassLabel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "malignant":
		*c = ClassMalignant
	case "benign":
		*c = ClassBenign
	case "indeterminate":
		*c = ClassIndeterminate
	default:
		return fmt.Errorf("unknown class label: %q", string(text))
	}
	return nil
}

// RiskLevel は信頼度から導出されるリスク区分を表す。
type RiskLevel int

const (
	// RiskLow は低リスク（信頼度80%以上）。
	RiskLow RiskLevel = iota + 1
	// RiskMedium は中リスク（信頼度50%以上80%未満）。
	RiskMedium
	// RiskHigh は高リスク（信頼度50%未満）。
	RiskHigh
)

// String はリスク区分の識別名を返す。
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText はJSON等へのテキスト表現を返す。
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText はテキスト表現からリスク区分を復元する。
func (r *RiskLevel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "low":
		*r = RiskLow
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	default:
		return fmt.Errorf("unknown risk level: %q", string(text))
	}
	return nil
}

// ProbabilityVector はClassLabelのインデックスに対応する3クラスの確率。
type ProbabilityVector [3]float64

// Validate は各値が[0,1]に収まり、合計がほぼ1であることを検証する。
func (p ProbabilityVector) Validate() error {
	var sum float64
	for i, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("probability[%d] out of range: %v", i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > probabilitySumTolerance {
		return fmt.Errorf("probabilities must sum to 1, got %.4f", sum)
	}
	return nil
}

// ProbabilityVectorFromSlice は可変長スライスを確率ベクトルに変換し検証する。
func ProbabilityVectorFromSlice(values []float64) (ProbabilityVector, error) {
	var p ProbabilityVector
	if len(values) != len(p) {
		return p, fmt.Errorf("expected %d probabilities, got %d", len(p), len(values))
	}
	copy(p[:], values)
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// DiagnosticRecord は1件の診断結果を表す。作成後は不変。
type DiagnosticRecord struct {
	ID                string            `json:"id"`
	CreatedAt         time.Time         `json:"created_at"`
	ClassLabel        ClassLabel        `json:"class_label"`
	ConfidencePercent float64           `json:"confidence_percent"`
	Probabilities     ProbabilityVector `json:"probabilities"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	Thumbnail         string            `json:"thumbnail,omitempty"` // data URL
	Pending           bool              `json:"pending"`
}

// IsPendingID はIDがリモート未確定の記録を指すかを返す。
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// PendingID はローカル採番IDから外部公開用のIDを生成する。
func PendingID(localID int64) string {
	return fmt.Sprintf("%s%d", PendingIDPrefix, localID)
}

// PredictionResult は /api/predict/ のレスポンスを表す。
type PredictionResult struct {
	PredictedClass  string            `json:"predicted_class"`
	PredictedIndex  int               `json:"predicted_index"`
	Confidence      float64           `json:"confidence"`
	ConfidenceLevel string            `json:"confidence_level"`
	ConfidenceRange string            `json:"confidence_range"`
	Probabilities   ProbabilityVector `json:"probabilities"`
}

// RiskPoint はリスク推移グラフの1点を表す。
type RiskPoint struct {
	At       time.Time `json:"at"`
	RecordID string    `json:"record_id"`
	Level    RiskLevel `json:"level"`
}

// AggregateSnapshot は診断記録の集計結果。永続化せず、常に記録集合から再計算する。
type AggregateSnapshot struct {
	ClassCounts  map[ClassLabel]int `json:"class_counts"`
	RiskTimeline []RiskPoint        `json:"risk_timeline"`
	Total        int                `json:"total"`
}

// RemoteDiagnostic はリモートが返した診断記録と、作成時に付与した相関IDの組。
// 相関IDは保留中記録との重複排除に使用する。旧形式のレスポンスでは空になる。
type RemoteDiagnostic struct {
	Record    DiagnosticRecord
	ClientRef string
}

// NewRemoteDiagnostic はリモートへ新規作成を依頼する診断記録を表す。
type NewRemoteDiagnostic struct {
	ClientRef string
	Record    DiagnosticRecord
}
