// Package aggregate は診断記録の集合からグラフ用の集計結果を導出する。
// すべての関数は副作用を持たず、入力スライスを変更しない。
package aggregate

import (
	"sort"

	"github.com/hitoshi/dermadash/internal/model"
)

// Summarize は診断記録を集計する。
// クラス別件数は全クラスを0で初期化し、リスク推移は作成日時の昇順（同時刻はID順）に並べる。
func Summarize(records []model.DiagnosticRecord) model.AggregateSnapshot {
	counts := make(map[model.ClassLabel]int, len(model.ClassLabels))
	for _, c := range model.ClassLabels {
		counts[c] = 0
	}

	sorted := make([]model.DiagnosticRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	timeline := make([]model.RiskPoint, 0, len(sorted))
	for _, rec := range sorted {
		counts[rec.ClassLabel]++
		timeline = append(timeline, model.RiskPoint{
			At:       rec.CreatedAt,
			RecordID: rec.ID,
			Level:    rec.RiskLevel,
		})
	}

	return model.AggregateSnapshot{
		ClassCounts:  counts,
		RiskTimeline: timeline,
		Total:        len(records),
	}
}
