package model

import "strings"

// リスク区分の閾値（信頼度%）
const (
	lowRiskThreshold    = 80.0
	mediumRiskThreshold = 50.0
)

// RiskLevelFor は信頼度(0-100)からリスク区分を導出する。
func RiskLevelFor(confidencePercent float64) RiskLevel {
	switch {
	case confidencePercent >= lowRiskThreshold:
		return RiskLow
	case confidencePercent >= mediumRiskThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ClassLabelFor は確率ベクトルの最大値のインデックスをクラスに変換する。
// 同値の場合は小さいインデックスを優先する。
func ClassLabelFor(p ProbabilityVector) ClassLabel {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return ClassLabels[best]
}

// ClassLabelFromDiagnosis はサーバーの診断名テキストからクラスを推定する。
// 確率ベクトルが欠けた旧形式のレスポンス向け。
func ClassLabelFromDiagnosis(diagnosis string) ClassLabel {
	d := strings.ToLower(diagnosis)
	switch {
	case strings.Contains(d, "malign"):
		return ClassMalignant
	case strings.Contains(d, "benign"):
		return ClassBenign
	default:
		return ClassIndeterminate
	}
}

// NewDiagnosticRecord は予測結果から診断記録を組み立てる。
// クラスは確率ベクトルから、リスク区分は信頼度から導出する。
func NewDiagnosticRecord(id string, pred PredictionResult, thumbnail string) DiagnosticRecord {
	return DiagnosticRecord{
		ID:                id,
		ClassLabel:        ClassLabelFor(pred.Probabilities),
		ConfidencePercent: pred.Confidence,
		Probabilities:     pred.Probabilities,
		RiskLevel:         RiskLevelFor(pred.Confidence),
		Thumbnail:         thumbnail,
		Pending:           IsPendingID(id),
	}
}
