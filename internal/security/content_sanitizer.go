// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが投稿したテキスト（チャット本文、コミュニティ説明など）から
// HTMLを除去し、プレーンテキストとして保存できる形に整える。
// bluemondayのStrictPolicyで全タグを除去した後、エンティティを元の文字に戻す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力テキストのサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleなどの要素は中身ごと除去される。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemonday.Policyはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() ContentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは & や < をエスケープして返すため、保存用に元の文字へ戻す
	return strings.TrimSpace(html.UnescapeString(stripped))
}
