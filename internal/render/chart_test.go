package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/dermadash/internal/model"
)

// --- モック定義 ---

// trackingFactory は生成と解放の順序を記録する。
type trackingFactory struct {
	events  []string
	live    int
	maxLive int
	newErr  error
}

type trackingChart struct {
	f    *trackingFactory
	name string
	err  error
}

func (c *trackingChart) Release() error {
	if c.err != nil {
		return c.err
	}
	c.f.live--
	c.f.events = append(c.f.events, "release:"+c.name)
	return nil
}

func (f *trackingFactory) NewChart(slot string, spec ChartSpec) (Chart, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.events = append(f.events, "new:"+spec.Title)
	return &trackingChart{f: f, name: spec.Title}, nil
}

var _ ChartFactory = (*trackingFactory)(nil)

func TestChartSlot_ReleasesBeforeCreating(t *testing.T) {
	f := &trackingFactory{}
	var released []string
	slot := NewChartSlot("class_distribution", f, func(name string) { released = append(released, name) })

	for _, title := range []string{"a", "b", "c"} {
		if err := slot.Draw(ChartSpec{Title: title}); err != nil {
			t.Fatalf("Draw がエラーを返した: %v", err)
		}
	}

	want := []string{"new:a", "release:a", "new:b", "release:b", "new:c"}
	if strings.Join(f.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", f.events, want)
	}
	if f.maxLive != 1 {
		t.Errorf("同時に存在したグラフ数 = %d, want 1", f.maxLive)
	}
	if len(released) != 2 || released[0] != "class_distribution" {
		t.Errorf("解放通知 = %v", released)
	}

	if err := slot.Release(); err != nil {
		t.Fatalf("Release がエラーを返した: %v", err)
	}
	if slot.Active() || f.live != 0 {
		t.Errorf("Release 後にグラフが残っている: live=%d", f.live)
	}
	// 2回目の解放は何もしない
	if err := slot.Release(); err != nil {
		t.Errorf("空のスロットの Release がエラーを返した: %v", err)
	}
}

func TestChartSlot_CreateFailureLeavesSlotEmpty(t *testing.T) {
	f := &trackingFactory{}
	slot := NewChartSlot("risk_timeline", f, nil)
	slot.Draw(ChartSpec{Title: "a"})

	f.newErr = errors.New("canvas missing")
	if err := slot.Draw(ChartSpec{Title: "b"}); err == nil {
		t.Fatal("生成失敗はエラーを返すべき")
	}
	if slot.Active() {
		t.Error("生成に失敗した場合スロットは空であるべき")
	}
	if f.live != 0 {
		t.Errorf("古いグラフは解放済みであるべき: live=%d", f.live)
	}
}

func TestChartSlot_ReleaseFailureKeepsCurrent(t *testing.T) {
	f := &trackingFactory{}
	slot := NewChartSlot("probabilities", f, nil)
	slot.Draw(ChartSpec{Title: "a"})
	slot.current.(*trackingChart).err = errors.New("busy")

	if err := slot.Draw(ChartSpec{Title: "b"}); err == nil {
		t.Fatal("解放失敗はエラーを返すべき")
	}
	if f.live != 1 {
		t.Errorf("解放に失敗した場合は新しいグラフを生成しないべき: live=%d", f.live)
	}
}

func TestTextRenderer_ChartLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf)
	slot := NewChartSlot("class_distribution", r, nil)

	spec := ChartSpec{
		Kind:     ChartPie,
		Title:    "Class distribution",
		Labels:   []string{"Malignant", "Benign"},
		Datasets: []Dataset{{Data: []float64{1, 3}}},
	}
	slot.Draw(spec)
	slot.Draw(spec)

	if r.LiveCharts() != 1 {
		t.Errorf("LiveCharts() = %d, want 1", r.LiveCharts())
	}
	out := buf.String()
	if !strings.Contains(out, "== Class distribution ==") || !strings.Contains(out, "Benign") {
		t.Errorf("出力 = %q", out)
	}
	if !strings.Contains(out, strings.Repeat("#", barWidth)) {
		t.Errorf("最大値は最大幅の棒で描画されるべき: %q", out)
	}
}

func TestTextRenderer_ValueLabels(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf)

	r.NewChart("risk_timeline", ChartSpec{
		Kind:        ChartLine,
		Title:       "Risk",
		Labels:      []string{"2024-01-01"},
		Datasets:    []Dataset{{Data: []float64{3}}},
		ValueLabels: []AxisLabel{{Value: 1, Label: "Low"}, {Value: 3, Label: "High"}},
	})

	if !strings.Contains(buf.String(), "High") {
		t.Errorf("値ラベルが出力されるべき: %q", buf.String())
	}
}

func TestTextRenderer_ShowFrame(t *testing.T) {
	rec := model.DiagnosticRecord{
		ID:                "local-1",
		CreatedAt:         time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		ClassLabel:        model.ClassMalignant,
		ConfidencePercent: 82,
		RiskLevel:         model.RiskLow,
		Pending:           true,
	}

	tests := []struct {
		name  string
		frame Frame
		want  []string
	}{
		{"未認証", Frame{View: model.ViewAuth}, []string{"dermadash login"}},
		{"ホーム", Frame{View: model.ViewHome, User: &model.UserProfile{FirstName: "Ana", LastName: "Gómez", Role: model.RoleDoctor}}, []string{"Ana Gómez", "Doctor"}},
		{"診断結果", Frame{View: model.ViewDiagnose, Record: &rec}, []string{"local-1", "pending upload", "82.00%"}},
		{"履歴", Frame{View: model.ViewHistory, Records: []model.DiagnosticRecord{rec}}, []string{"ID", "local-1", "malignant", "pending"}},
		{"空の履歴", Frame{View: model.ViewHistory}, []string{"No diagnoses yet."}},
		{"通知", Frame{View: model.ViewAuth, Notice: "セッションの有効期限が切れました。"}, []string{"! セッションの有効期限が切れました。"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewTextRenderer(&buf)
			if err := r.ShowFrame(tt.frame); err != nil {
				t.Fatalf("ShowFrame がエラーを返した: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("出力に %q が含まれない: %q", w, buf.String())
				}
			}
		})
	}
}
