package render

import "github.com/hitoshi/dermadash/internal/model"

// Frame は画面表示の単位。ルーターが遷移のたびに描画担当へ渡す。
type Frame struct {
	View     model.ViewState          `json:"view"`
	Session  model.SessionState       `json:"-"`
	User     *model.UserProfile       `json:"user,omitempty"`
	Records  []model.DiagnosticRecord `json:"records,omitempty"`
	Snapshot *model.AggregateSnapshot `json:"snapshot,omitempty"`
	Record   *model.DiagnosticRecord  `json:"record,omitempty"`
	Notice   string                   `json:"notice,omitempty"`
}

// Renderer は画面とグラフを描画する外部コンポーネントのインターフェース。
type Renderer interface {
	ChartFactory
	ShowFrame(frame Frame) error
}
