// Package security は移行データのサニタイズ機能を提供する。
//
// TextSanitizer は台本の自由記述フィールド（状況説明・本文）に
// 貼り付けられたHTMLマークアップを除去し、プレーンテキストとして保存する。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた
// 文字参照を元に戻す。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はマークアップを除去したプレーンテキストを返す。
	// <br>は改行に置き換える。script, styleの中身は捨てる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

var lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーは並行利用しても安全。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// タグを含まない入力はそのまま返し、元の文字を保つ
	if !strings.ContainsAny(raw, "<>") {
		return strings.TrimSpace(raw)
	}
	withBreaks := lineBreakTag.ReplaceAllString(raw, "\n")
	stripped := s.policy.Sanitize(withBreaks)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
