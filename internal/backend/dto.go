package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/dermadash/internal/model"
)

// flexString は文字列と数値のどちらでも受け付ける。
type flexString string

// UnmarshalJSON は文字列・数値・nullを文字列として取り込む。
func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat は数値と数値文字列（Decimal型のシリアライズ結果）のどちらでも受け付ける。
type flexFloat struct {
	value float64
	set   bool
}

// UnmarshalJSON は数値または数値文字列を取り込む。
func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", string(s), err)
	}
	*f = flexFloat{value: v, set: true}
	return nil
}

// userPayload はユーザー情報のJSON表現。IDは数値の場合がある。
type userPayload struct {
	ID                   flexString `json:"id"`
	FirstName            string     `json:"first_name"`
	LastName             string     `json:"last_name"`
	Email                string     `json:"email"`
	Role                 string     `json:"role"`
	IdentificationNumber string     `json:"identification_number"`
	Gender               string     `json:"gender"`
	Phone                string     `json:"phone"`
	DateOfBirth          string     `json:"date_of_birth"`
}

func (p userPayload) toModel() model.UserProfile {
	return model.UserProfile{
		ID:                   string(p.ID),
		FirstName:            p.FirstName,
		LastName:             p.LastName,
		Email:                p.Email,
		Role:                 model.Role(p.Role),
		IdentificationNumber: p.IdentificationNumber,
		Gender:               p.Gender,
		Phone:                p.Phone,
		DateOfBirth:          p.DateOfBirth,
	}
}

// diagnosticPayload は診断履歴のJSON表現。
// サーバーのバージョンによりフィールド名や型が異なるため、複数の候補を受け付ける。
type diagnosticPayload struct {
	ID             flexString `json:"id"`
	ClientRef      string     `json:"client_ref,omitempty"`
	Date           string     `json:"date,omitempty"`
	DiagnosisDate  string     `json:"diagnosis_date,omitempty"`
	CreatedAt      string     `json:"created_at,omitempty"`
	Diagnosis      string     `json:"diagnosis,omitempty"`
	PredictedClass string     `json:"predicted_class,omitempty"`
	RiskLevel      flexFloat  `json:"risk_level"`
	Confidence     flexFloat  `json:"confidence"`
	Probabilities  []float64  `json:"probabilities,omitempty"`
	ImageData      string     `json:"image_data,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
}

// timestampLayouts は受け付ける日時フォーマット。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", s)
}

// toModel はペイロードを診断記録に変換する。
// 確率ベクトルが妥当であればそこからクラスを導出し、なければ診断名から推定する。
// 信頼度はrisk_level、confidence、確率の最大値の順に採用する。
func (p diagnosticPayload) toModel() (model.RemoteDiagnostic, error) {
	if p.ID == "" {
		return model.RemoteDiagnostic{}, fmt.Errorf("diagnostic without id")
	}

	var createdAt time.Time
	for _, candidate := range []string{p.Date, p.DiagnosisDate, p.CreatedAt} {
		if candidate == "" {
			continue
		}
		t, err := parseTimestamp(candidate)
		if err != nil {
			return model.RemoteDiagnostic{}, err
		}
		createdAt = t
		break
	}
	if createdAt.IsZero() {
		return model.RemoteDiagnostic{}, fmt.Errorf("diagnostic %s without timestamp", string(p.ID))
	}

	probs, probErr := model.ProbabilityVectorFromSlice(p.Probabilities)

	var class model.ClassLabel
	if probErr == nil {
		class = model.ClassLabelFor(probs)
	} else {
		probs = model.ProbabilityVector{}
		text := p.Diagnosis
		if text == "" {
			text = p.PredictedClass
		}
		class = model.ClassLabelFromDiagnosis(text)
	}

	var confidence float64
	switch {
	case p.RiskLevel.set:
		confidence = p.RiskLevel.value
	case p.Confidence.set:
		confidence = p.Confidence.value
	case probErr == nil:
		confidence = probs[class] * 100
	}

	thumb := p.Thumbnail
	if thumb == "" {
		thumb = p.ImageData
	}
	if thumb != "" && !strings.HasPrefix(thumb, "data:") {
		thumb = "data:image/jpeg;base64," + thumb
	}

	return model.RemoteDiagnostic{
		ClientRef: p.ClientRef,
		Record: model.DiagnosticRecord{
			ID:                string(p.ID),
			CreatedAt:         createdAt,
			ClassLabel:        class,
			ConfidencePercent: confidence,
			Probabilities:     probs,
			RiskLevel:         model.RiskLevelFor(confidence),
			Thumbnail:         thumb,
		},
	}, nil
}

// createPayload は /api/diagnostics/ への登録リクエスト。
type createPayload struct {
	ClientRef     string    `json:"client_ref"`
	DiagnosisDate string    `json:"diagnosis_date"`
	Diagnosis     string    `json:"diagnosis"`
	RiskLevel     float64   `json:"risk_level"`
	Probabilities []float64 `json:"probabilities"`
	ImageData     string    `json:"image_data,omitempty"`
}

func newCreatePayload(in model.NewRemoteDiagnostic) createPayload {
	rec := in.Record
	// サーバーはdata URLの接頭辞を含まないbase64を保持する
	image := rec.Thumbnail
	if i := strings.Index(image, ","); strings.HasPrefix(image, "data:") && i >= 0 {
		image = image[i+1:]
	}
	return createPayload{
		ClientRef:     in.ClientRef,
		DiagnosisDate: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		Diagnosis:     rec.ClassLabel.DisplayName(),
		RiskLevel:     rec.ConfidencePercent,
		Probabilities: rec.Probabilities[:],
		ImageData:     image,
	}
}

// predictionPayload は /api/predict/ のレスポンス。
type predictionPayload struct {
	PredictedClass  string    `json:"predicted_class"`
	PredictedIndex  int       `json:"predicted_index"`
	Confidence      flexFloat `json:"confidence"`
	ConfidenceLevel string    `json:"confidence_level"`
	ConfidenceRange string    `json:"confidence_range"`
	Probabilities   []float64 `json:"probabilities"`
}

// toModel は予測レスポンスを検証して変換する。確率ベクトルが不正な場合はエラー。
func (p predictionPayload) toModel() (model.PredictionResult, error) {
	probs, err := model.ProbabilityVectorFromSlice(p.Probabilities)
	if err != nil {
		return model.PredictionResult{}, err
	}
	confidence := p.Confidence.value
	if !p.Confidence.set {
		confidence = probs[model.ClassLabelFor(probs)] * 100
	}
	return model.PredictionResult{
		PredictedClass:  p.PredictedClass,
		PredictedIndex:  p.PredictedIndex,
		Confidence:      confidence,
		ConfidenceLevel: p.ConfidenceLevel,
		ConfidenceRange: p.ConfidenceRange,
		Probabilities:   probs,
	}, nil
}
