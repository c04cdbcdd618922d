// Package model はドメインモデルを定義する。
package model

import "time"

// Source は巡回対象のニュースフィード（名前とフィードURL）を表す。
// 起動時に設定から読み込まれ、プロセスの生存期間中はイミュータブル。
type Source struct {
	Name    string
	FeedURL string
}

// Article は正規化・重複排除済みの記事を表す。
// URLが自然キーであり、保存後は更新されない。
type Article struct {
	ID            string
	Title         string
	Description   string // サニタイズ済み
	URL           string // 重複排除キー（UNIQUE制約）
	ImageURL      string
	Source        string
	PublishedAt   time.Time
	DateEstimated bool // 公開日時が取得できず取り込み時刻で代用した場合にtrue
	CreatedAt     time.Time
}

// TimestampMillis は公開日時をエポックミリ秒で返す。
// APIレスポンスのtimestampフィールドに使用する。
func (a *Article) TimestampMillis() int64 {
	return a.PublishedAt.UnixMilli()
}

// RunResult は1回の取り込みサイクルの集計結果を表す。
// 永続化はされず、ログとメトリクスにのみ使用する。
type RunResult struct {
	Seen           int // 正規化に成功した記事候補の総数
	Inserted       int // 新規に保存された記事数
	Duplicates     int // URLが既存のためスキップされた記事数
	EntryErrors    int // 正規化失敗または保存失敗によりスキップされたエントリ数
	SourceFailures int // フェッチまたはパースに失敗したソース数
	Duration       time.Duration
}
