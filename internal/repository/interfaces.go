// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/pocketnews/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
// 取り込みパイプラインが依存するのはSaveIfNewのみで、
// 残りは読み取りAPIと保守ジョブが使用する。
type ArticleRepository interface {
	// SaveIfNew は記事のURLが未保存の場合のみ挿入する。
	// 挿入した場合はtrue、同一URLが既に存在する場合はfalseを返す。
	// 既存URLは正常系であり、エラーにはならない。
	// 並行呼び出しに対してもURLの一意性が保証される（ストレージ側の制約で担保）。
	SaveIfNew(ctx context.Context, article *model.Article) (bool, error)

	// List は記事一覧をpublished_at降順で返す。
	// sourceが空文字列の場合は全ソースを対象とする。
	List(ctx context.Context, skip, limit int, source string) ([]*model.Article, error)

	// CountBySource はソース名ごとの保存記事数を返す。
	CountBySource(ctx context.Context) (map[string]int, error)

	// DeleteOlderThan はpublished_atがcutoffより古い記事を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
