package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/hitoshi/dermadash/internal/model"
)

// barWidth は棒グラフの最大幅（文字数）。
const barWidth = 30

// TextRenderer は端末向けの描画担当。CLIから使用する。
type TextRenderer struct {
	mu   sync.Mutex
	w    io.Writer
	live int
}

// NewTextRenderer はTextRendererを生成する。
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// LiveCharts は解放されていないグラフの数を返す。
func (r *TextRenderer) LiveCharts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

type textChart struct {
	r        *TextRenderer
	released bool
}

func (c *textChart) Release() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if !c.released {
		c.released = true
		c.r.live--
	}
	return nil
}

// NewChart はグラフをテキストで出力する。
func (r *TextRenderer) NewChart(slot string, spec ChartSpec) (Chart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "\n== %s ==\n", spec.Title)
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	for _, ds := range spec.Datasets {
		peak := 0.0
		for _, v := range ds.Data {
			peak = math.Max(peak, v)
		}
		for i, v := range ds.Data {
			label := ""
			if i < len(spec.Labels) {
				label = spec.Labels[i]
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", label, bar(v, peak), formatValue(spec, v))
		}
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	r.live++
	return &textChart{r: r}, nil
}

func bar(v, peak float64) string {
	if peak <= 0 || v <= 0 {
		return ""
	}
	n := int(math.Round(v / peak * barWidth))
	if n < 1 {
		n = 1
	}
	return strings.Repeat("#", n)
}

func formatValue(spec ChartSpec, v float64) string {
	for _, l := range spec.ValueLabels {
		if l.Value == v {
			return l.Label
		}
	}
	if spec.Kind == ChartHorizontalBar {
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("%g", v)
}

// ShowFrame は画面を出力する。
func (r *TextRenderer) ShowFrame(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch f.View {
	case model.ViewAuth:
		fmt.Fprintln(r.w, "Not signed in. Run `dermadash login` or `dermadash register`.")
	case model.ViewHome:
		if f.User != nil {
			fmt.Fprintf(r.w, "Signed in as %s (%s) <%s>\n", f.User.DisplayName(), f.User.RoleLabel(), f.User.Email)
		} else {
			fmt.Fprintln(r.w, "Working offline. Records are kept on this device.")
		}
	case model.ViewDiagnose:
		if f.Record != nil {
			writeRecord(r.w, *f.Record)
		} else {
			fmt.Fprintln(r.w, "Select an image to analyze.")
		}
	case model.ViewResults:
		if f.Snapshot != nil {
			fmt.Fprintf(r.w, "Total diagnoses: %d\n", f.Snapshot.Total)
		}
	case model.ViewHistory:
		if f.Record != nil {
			writeRecord(r.w, *f.Record)
			break
		}
		if err := writeHistory(r.w, f.Records); err != nil {
			return err
		}
	}
	if f.Notice != "" {
		fmt.Fprintf(r.w, "! %s\n", f.Notice)
	}
	return nil
}

func writeRecord(w io.Writer, rec model.DiagnosticRecord) {
	status := "confirmed"
	if rec.Pending {
		status = "pending upload"
	}
	fmt.Fprintf(w, "Diagnosis %s (%s)\n", rec.ID, status)
	fmt.Fprintf(w, "  Date:       %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  Result:     %s\n", rec.ClassLabel.DisplayName())
	fmt.Fprintf(w, "  Confidence: %.2f%%\n", rec.ConfidencePercent)
	fmt.Fprintf(w, "  Risk:       %s\n", rec.RiskLevel)
}

func writeHistory(w io.Writer, records []model.DiagnosticRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No diagnoses yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tRESULT\tCONFIDENCE\tRISK\tSTATUS")
	// 新しい順に表示する
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		status := "confirmed"
		if rec.Pending {
			status = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\t%s\t%s\n",
			rec.ID,
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.ClassLabel,
			rec.ConfidencePercent,
			rec.RiskLevel,
			status,
		)
	}
	return tw.Flush()
}
