// Package render は外部の描画担当（CLIやダッシュボード）に渡すデータモデルと、
// グラフオブジェクトの所有権を管理するスロットを提供する。
package render

import (
	"fmt"
	"sync"
)

// ChartKind はグラフの種類。
type ChartKind string

const (
	ChartPie           ChartKind = "pie"
	ChartLine          ChartKind = "line"
	ChartHorizontalBar ChartKind = "horizontal_bar"
)

// Dataset はグラフの系列。
type Dataset struct {
	Label            string    `json:"label"`
	Data             []float64 `json:"data"`
	BackgroundColors []string  `json:"background_colors,omitempty"`
	BorderColor      string    `json:"border_color,omitempty"`
}

// AxisLabel は数値軸の目盛りに表示するラベル。
type AxisLabel struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// ChartSpec は描画ライブラリに渡すグラフのデータモデル。
type ChartSpec struct {
	Kind        ChartKind   `json:"kind"`
	Title       string      `json:"title"`
	Labels      []string    `json:"labels"`
	Datasets    []Dataset   `json:"datasets"`
	ValueLabels []AxisLabel `json:"value_labels,omitempty"`
	ValueMin    *float64    `json:"value_min,omitempty"`
	ValueMax    *float64    `json:"value_max,omitempty"`
}

// Chart は描画担当が生成したグラフのハンドル。
// 所有者は1つで、再描画の前に必ずReleaseする。
type Chart interface {
	Release() error
}

// ChartFactory はグラフを生成する描画担当のインターフェース。
// slotは描画先の識別子（例: "class_distribution"）。
type ChartFactory interface {
	NewChart(slot string, spec ChartSpec) (Chart, error)
}

// ReleaseObserver はグラフの解放を通知するコールバック。
type ReleaseObserver func(slot string)

// ChartSlot は1つの描画先に対応するグラフの所有者。
// 新しいグラフを生成する前に、必ず現在のグラフを解放する。
type ChartSlot struct {
	name      string
	factory   ChartFactory
	onRelease ReleaseObserver

	mu      sync.Mutex
	current Chart
}

// NewChartSlot はChartSlotを生成する。onReleaseはnilでもよい。
func NewChartSlot(name string, factory ChartFactory, onRelease ReleaseObserver) *ChartSlot {
	return &ChartSlot{name: name, factory: factory, onRelease: onRelease}
}

// Name はスロット名を返す。
func (s *ChartSlot) Name() string {
	return s.name
}

// Draw は現在のグラフを解放してから新しいグラフを生成する。
// 解放に失敗した場合は新しいグラフを生成せずエラーを返す。
func (s *ChartSlot) Draw(spec ChartSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.releaseLocked(); err != nil {
		return err
	}
	chart, err := s.factory.NewChart(s.name, spec)
	if err != nil {
		return fmt.Errorf("グラフの生成に失敗しました (%s): %w", s.name, err)
	}
	s.current = chart
	return nil
}

// Release は現在のグラフを解放する。グラフがなければ何もしない。
func (s *ChartSlot) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

// Active はグラフを保持しているかを返す。
func (s *ChartSlot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *ChartSlot) releaseLocked() error {
	if s.current == nil {
		return nil
	}
	if err := s.current.Release(); err != nil {
		return fmt.Errorf("グラフの解放に失敗しました (%s): %w", s.name, err)
	}
	s.current = nil
	if s.onRelease != nil {
		s.onRelease(s.name)
	}
	return nil
}
