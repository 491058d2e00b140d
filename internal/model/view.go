package model

import "fmt"

// ViewState は表示中の画面を表す。常に1つだけがアクティブになる。
type ViewState string

const (
	ViewHome     ViewState = "home"
	ViewAuth     ViewState = "auth"
	ViewDiagnose ViewState = "diagnose"
	ViewResults  ViewState = "results"
	ViewHistory  ViewState = "history"
)

// ParseViewState は文字列を画面状態に変換する。
func ParseViewState(s string) (ViewState, error) {
	switch v := ViewState(s); v {
	case ViewHome, ViewAuth, ViewDiagnose, ViewResults, ViewHistory:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view: %q", s)
	}
}
