// Package security はダッシュボードへ送出する値の無害化を提供する。
//
// サーバーから受け取ったメッセージやユーザー名は、ブラウザに渡す前に
// bluemondayのStrictPolicyで全タグを除去する。サムネイルは画像のdata URLのみ通過させる。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// thumbnailPattern は許可するサムネイルのdata URL。
var thumbnailPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp|bmp);base64,[A-Za-z0-9+/]*={0,2}$`)

// TextSanitizerService はテキストの無害化のインターフェース。
type TextSanitizerService interface {
	// Text はHTMLタグを全て除去したプレーンテキストを返す。
	// エンティティはデコードされ、前後の空白は除去される。
	Text(raw string) string
	// Thumbnail は画像のdata URLであればそのまま返し、それ以外は空文字列を返す。
	Thumbnail(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Text はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはエスケープ済みの文字列を返すため、表示用にデコードする
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// Thumbnail は画像のdata URLのみを通過させる。
func (s *textSanitizer) Thumbnail(raw string) string {
	if thumbnailPattern.MatchString(raw) {
		return raw
	}
	return ""
}
