package aggregate

import (
	"math"

	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/render"
)

// グラフの描画先スロット名。
const (
	SlotClassDistribution = "class_distribution"
	SlotRiskTimeline      = "risk_timeline"
	SlotProbabilities     = "probabilities"
)

// timelineLayout はリスク推移グラフの横軸ラベルの書式。
const timelineLayout = "2006-01-02 15:04"

// classColors はクラスごとの表示色。
var classColors = map[model.ClassLabel]string{
	model.ClassMalignant:     "rgba(220, 53, 69, 0.7)",
	model.ClassBenign:        "rgba(40, 167, 69, 0.7)",
	model.ClassIndeterminate: "rgba(255, 193, 7, 0.7)",
}

// ClassDistributionChart はクラス別件数の円グラフを生成する。件数0のクラスは含めない。
func ClassDistributionChart(s model.AggregateSnapshot) render.ChartSpec {
	spec := render.ChartSpec{
		Kind:   render.ChartPie,
		Title:  "Class distribution",
		Labels: []string{},
	}
	ds := render.Dataset{Label: "Diagnoses"}
	for _, c := range model.ClassLabels {
		n := s.ClassCounts[c]
		if n == 0 {
			continue
		}
		spec.Labels = append(spec.Labels, c.DisplayName())
		ds.Data = append(ds.Data, float64(n))
		ds.BackgroundColors = append(ds.BackgroundColors, classColors[c])
	}
	spec.Datasets = []render.Dataset{ds}
	return spec
}

// RiskTimelineChart はリスク推移の折れ線グラフを生成する。値は1=Low, 2=Medium, 3=High。
func RiskTimelineChart(s model.AggregateSnapshot) render.ChartSpec {
	lo, hi := 0.0, 3.0
	spec := render.ChartSpec{
		Kind:   render.ChartLine,
		Title:  "Risk level over time",
		Labels: make([]string, 0, len(s.RiskTimeline)),
		ValueLabels: []render.AxisLabel{
			{Value: float64(model.RiskLow), Label: "Low"},
			{Value: float64(model.RiskMedium), Label: "Medium"},
			{Value: float64(model.RiskHigh), Label: "High"},
		},
		ValueMin: &lo,
		ValueMax: &hi,
	}
	ds := render.Dataset{
		Label:       "Risk level",
		Data:        make([]float64, 0, len(s.RiskTimeline)),
		BorderColor: "rgb(75, 192, 192)",
	}
	for _, p := range s.RiskTimeline {
		spec.Labels = append(spec.Labels, p.At.Local().Format(timelineLayout))
		ds.Data = append(ds.Data, float64(p.Level))
	}
	spec.Datasets = []render.Dataset{ds}
	return spec
}

// ProbabilityChart は1件の記録のクラス別確率の横棒グラフを生成する。値は小数第2位までの百分率。
func ProbabilityChart(rec model.DiagnosticRecord) render.ChartSpec {
	lo, hi := 0.0, 100.0
	spec := render.ChartSpec{
		Kind:     render.ChartHorizontalBar,
		Title:    "Probability (%)",
		Labels:   make([]string, 0, len(model.ClassLabels)),
		ValueMin: &lo,
		ValueMax: &hi,
	}
	ds := render.Dataset{Label: "Probability (%)"}
	for i, c := range model.ClassLabels {
		spec.Labels = append(spec.Labels, c.DisplayName())
		ds.Data = append(ds.Data, roundPercent(rec.Probabilities[i]))
		ds.BackgroundColors = append(ds.BackgroundColors, classColors[c])
	}
	spec.Datasets = []render.Dataset{ds}
	return spec
}

func roundPercent(p float64) float64 {
	return math.Round(p*100*100) / 100
}
