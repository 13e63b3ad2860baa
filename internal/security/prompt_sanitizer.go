// Package security はアプリケーションのセキュリティ機能を提供する。
//
// PromptSanitizerService は寄稿プロンプトをプレーンテキストに正規化する。
// プロンプトは埋め込み生成とカタログ表示の両方に使われるため、
// bluemondayのStrictPolicyで全HTMLタグを除去し、前後の空白を刈り込む。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PromptSanitizerService はプロンプトサニタイズ機能のインターフェースを定義する。
type PromptSanitizerService interface {
	// Sanitize はプロンプトからHTMLタグを全て除去し、
	// 前後の空白を取り除いたプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(prompt string) string
}

// promptSanitizer はPromptSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type promptSanitizer struct {
	policy *bluemonday.Policy
}

// NewPromptSanitizer はPromptSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグなしの許可リストであり、全てのマークアップを除去する。
func NewPromptSanitizer() *promptSanitizer {
	return &promptSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はプロンプトをサニタイズしてプレーンテキストを返す。
func (s *promptSanitizer) Sanitize(prompt string) string {
	return strings.TrimSpace(s.policy.Sanitize(prompt))
}
