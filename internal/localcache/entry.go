package localcache

import (
	"time"

	"github.com/hitoshi/dermadash/internal/model"
)

// Status はローカル記録のリモート反映状態。
type Status string

const (
	// StatusPending はリモートへの登録が未確定。
	StatusPending Status = "pending"
	// StatusConfirmed はリモートへの登録が確定し、サーバーIDが割り当て済み。
	StatusConfirmed Status = "confirmed"
)

// Entry はキャッシュに保存される1件の診断記録。
type Entry struct {
	LocalID           int64                   `json:"local_id"`
	CorrelationID     string                  `json:"correlation_id"`
	RemoteID          string                  `json:"remote_id,omitempty"`
	Status            Status                  `json:"status"`
	CreatedAt         time.Time               `json:"created_at"`
	ClassLabel        model.ClassLabel        `json:"class_label"`
	ConfidencePercent float64                 `json:"confidence_percent"`
	Probabilities     model.ProbabilityVector `json:"probabilities"`
	RiskLevel         model.RiskLevel         `json:"risk_level"`
	Thumbnail         string                  `json:"thumbnail,omitempty"`
}

// Draft はキャッシュへ追加する診断記録の内容。IDはキャッシュが採番する。
type Draft struct {
	CreatedAt         time.Time
	ClassLabel        model.ClassLabel
	ConfidencePercent float64
	Probabilities     model.ProbabilityVector
	RiskLevel         model.RiskLevel
	Thumbnail         string
}

// DraftFromRecord は診断記録からDraftを生成する。IDは無視される。
func DraftFromRecord(rec model.DiagnosticRecord) Draft {
	return Draft{
		CreatedAt:         rec.CreatedAt,
		ClassLabel:        rec.ClassLabel,
		ConfidencePercent: rec.ConfidencePercent,
		Probabilities:     rec.Probabilities,
		RiskLevel:         rec.RiskLevel,
		Thumbnail:         rec.Thumbnail,
	}
}

// IsPending はリモート未確定かどうかを返す。
func (e Entry) IsPending() bool {
	return e.Status != StatusConfirmed
}

// VisibleID は外部に公開するIDを返す。
// 確定済みであればサーバーID、未確定であれば接頭辞付きのローカルID。
func (e Entry) VisibleID() string {
	if !e.IsPending() && e.RemoteID != "" {
		return e.RemoteID
	}
	return model.PendingID(e.LocalID)
}

// Record はエントリを診断記録に変換する。
func (e Entry) Record() model.DiagnosticRecord {
	return model.DiagnosticRecord{
		ID:                e.VisibleID(),
		CreatedAt:         e.CreatedAt,
		ClassLabel:        e.ClassLabel,
		ConfidencePercent: e.ConfidencePercent,
		Probabilities:     e.Probabilities,
		RiskLevel:         e.RiskLevel,
		Thumbnail:         e.Thumbnail,
		Pending:           e.IsPending(),
	}
}
