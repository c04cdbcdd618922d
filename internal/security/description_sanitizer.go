// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizerService はフィードエントリの説明文HTMLをサニタイズし、
// 保存前にXSSの危険がある要素を除去する。bluemondayの許可リストベースの
// ポリシーで、概要表示に必要な最小限のタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService はHTML説明文のサニタイズ機能のインターフェースを定義する。
// 記事の正規化時、保存前に使用される。
type DescriptionSanitizerService interface {
	// Sanitize は説明文HTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, code, strong, em）のみを通過させ、
	// script, iframe, style, imgタグおよびon*イベント属性を除去する。
	// 画像は記事のimage_urlフィールドで別管理するため、imgタグは許可しない。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, code, strong, em
//   - script, iframe, style, img等は許可リストに含めないことで自動的に除去される
//   - on*イベント属性はbluemondayのデフォルトで許可されないため除去される
//   - aタグ: href属性のみ許可、相対URLは不許可、
//     target="_blank" と rel="noreferrer noopener" を強制付与
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize は説明文HTMLをサニタイズして安全なHTMLを返す。
// 前後の空白は除去する。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
