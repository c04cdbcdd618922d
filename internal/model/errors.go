// Package model はドメインモデルを定義する。
package model

import "fmt"

// NormalizeReason は正規化失敗の理由を表す。
type NormalizeReason string

const (
	// NormalizeMissingTitle はタイトルが空または欠落していることを示す。
	NormalizeMissingTitle NormalizeReason = "missing_title"
	// NormalizeMissingURL はリンクが欠落していることを示す。
	// URLは重複排除キーのため、この場合エントリは保存できない。
	NormalizeMissingURL NormalizeReason = "missing_url"
)

// NormalizationError は1エントリの正規化失敗を表す。
// エントリ単位で回復可能であり、同一フィード内の後続エントリの処理は継続される。
type NormalizationError struct {
	Reason NormalizeReason
	Source string
}

// Error はerrorインターフェースを実装する。
func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed (%s): source=%s", e.Reason, e.Source)
}

// FetchErrorKind はソース単位のフェッチ失敗の分類を表す。
type FetchErrorKind string

const (
	// FetchBadStatus はHTTPステータスが200以外だったことを示す。
	FetchBadStatus FetchErrorKind = "bad_status"
	// FetchParseFailure はフィードのパースに失敗したことを示す。
	FetchParseFailure FetchErrorKind = "parse_failure"
	// FetchTimeout はリクエストがタイムアウトしたことを示す。
	FetchTimeout FetchErrorKind = "timeout"
	// FetchNetworkUnreachable は接続自体に失敗したことを示す。
	FetchNetworkUnreachable FetchErrorKind = "network_unreachable"
)

// FetchError はソース単位のフェッチ失敗を表す。
// 該当ソースはそのランでスキップされ、次回のスケジュールで自然に再試行される。
type FetchError struct {
	Kind       FetchErrorKind
	Source     string
	StatusCode int // Kind == FetchBadStatus の場合のみ設定
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Kind == FetchBadStatus {
		return fmt.Sprintf("fetch failed (%s): source=%s status=%d", e.Kind, e.Source, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): source=%s: %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s): source=%s", e.Kind, e.Source)
}

// Unwrap は内包するエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError は記事保存時の永続化層の失敗を表す。
// 記事単位で回復可能であり、ランは継続される。
type StoreError struct {
	URL string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("store failed: url=%s: %v", e.URL, e.Err)
}

// Unwrap は内包するエラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// APIError は読み取りAPIの統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidSkip  = "INVALID_SKIP"
	ErrCodeInvalidLimit = "INVALID_LIMIT"
)

// NewInvalidSkipError は無効なskipパラメータのエラーを生成する。
func NewInvalidSkipError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSkip,
		Message:  fmt.Sprintf("skipパラメータが無効です: %s", value),
		Category: "validation",
		Action:   "skipには0以上の整数を指定してください。",
	}
}

// NewInvalidLimitError は無効なlimitパラメータのエラーを生成する。
func NewInvalidLimitError(value string, min, max int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("limitパラメータが無効です: %s", value),
		Category: "validation",
		Action:   fmt.Sprintf("limitには%dから%dの整数を指定してください。", min, max),
	}
}
