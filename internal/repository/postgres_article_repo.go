package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/pocketnews/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// SaveIfNew は記事のURLが未保存の場合のみ挿入する。
// articlesテーブルのUNIQUE(url)制約とON CONFLICT DO NOTHINGにより、
// 存在確認と挿入が1文でアトミックに行われる。
// 並行するソースタスクや重なり合うランが同一URLで競合しても重複は保存されない。
func (r *PostgresArticleRepo) SaveIfNew(ctx context.Context, article *model.Article) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, description, url, image_url, source, published_at, date_estimated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (url) DO NOTHING`,
		article.ID, article.Title, article.Description, article.URL,
		article.ImageURL, article.Source, article.PublishedAt,
		article.DateEstimated, article.CreatedAt,
	)
	if err != nil {
		return false, &model.StoreError{URL: article.URL, Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, &model.StoreError{URL: article.URL, Err: err}
	}

	return rows == 1, nil
}

// List は記事一覧をpublished_at降順で返す。
// sourceが空文字列の場合は全ソースを対象とする。
func (r *PostgresArticleRepo) List(ctx context.Context, skip, limit int, source string) ([]*model.Article, error) {
	query := `SELECT id, title, description, url, image_url, source, published_at, date_estimated, created_at
	          FROM articles`
	args := []any{}

	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}

	query += fmt.Sprintf(` ORDER BY published_at DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, skip, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	articles := []*model.Article{}
	for rows.Next() {
		a := &model.Article{}
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.URL, &a.ImageURL,
			&a.Source, &a.PublishedAt, &a.DateEstimated, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("記事行のスキャンに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
	}

	return articles, nil
}

// CountBySource はソース名ごとの保存記事数を返す。
func (r *PostgresArticleRepo) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM articles GROUP BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース別件数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("ソース別件数のスキャンに失敗しました: %w", err)
		}
		counts[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース別件数の読み取りに失敗しました: %w", err)
	}

	return counts, nil
}

// DeleteOlderThan はpublished_atがcutoffより古い記事を削除し、削除件数を返す。
func (r *PostgresArticleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE published_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}

	return result.RowsAffected()
}
