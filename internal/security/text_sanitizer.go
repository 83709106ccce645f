// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はお題本文や表示名などの利用者入力からHTMLを取り除き、
// プレーンテキストに整形する。
type TextSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer はTextSanitizerを生成する。
// maxRunesが0以下の場合は長さを制限しない。
func NewTextSanitizer(maxRunes int) *TextSanitizer {
	return &TextSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize はタグを除去し、連続する空白を1つにまとめて前後の空白を取り除く。
// 最大文字数を超える部分は切り詰める。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは&などをエスケープするため、保存前にプレーンテキストへ戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if s.maxRunes > 0 && utf8.RuneCountInString(text) > s.maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxRunes]))
	}
	return text
}
