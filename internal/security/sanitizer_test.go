package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer_Text(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"空文字列", "", ""},
		{"プレーンテキスト", "Modelo no cargado en el servidor", "Modelo no cargado en el servidor"},
		{"scriptタグ除去", `Ana<script>alert(1)</script>`, "Ana"},
		{"イベント属性除去", `<img src=x onerror="alert(1)">Gómez`, "Gómez"},
		{"エンティティ", "Benigno &amp; estable", "Benigno & estable"},
		{"前後の空白", "  <b>Alta</b>  ", "Alta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Text_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	in := `<a href="javascript:alert(1)">click</a> me`
	once := s.Text(in)
	if twice := s.Text(once); twice != once {
		t.Errorf("冪等でない: %q -> %q", once, twice)
	}
	if strings.Contains(once, "javascript") {
		t.Errorf("危険なURLが残っている: %q", once)
	}
}

func TestTextSanitizer_Thumbnail(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"jpeg", "data:image/jpeg;base64,/9j/4AAQ", true},
		{"png", "data:image/png;base64,iVBORw0KGgo=", true},
		{"svgは拒否", "data:image/svg+xml;base64,PHN2Zz4=", false},
		{"テキスト", "data:text/html;base64,PHNjcmlwdD4=", false},
		{"javascript", "javascript:alert(1)", false},
		{"リモートURL", "https://example.com/a.png", false},
		{"base64以外の文字", `data:image/png;base64,AA"onload="x`, false},
		{"空", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Thumbnail(tt.in)
			if (got != "") != tt.ok {
				t.Errorf("Thumbnail(%q) = %q, want ok=%v", tt.in, got, tt.ok)
			}
		})
	}
}
