// Package article は保存済み記事の読み取り機能を提供する。
package article

import (
	"context"
	"strconv"

	"github.com/hitoshi/pocketnews/internal/model"
	"github.com/hitoshi/pocketnews/internal/repository"
)

// ページネーションの境界値。読み取りAPIの契約に合わせる。
const (
	// DefaultLimit は/api/articlesのデフォルト取得件数。
	DefaultLimit = 20
	// MaxLimit は/api/articlesの最大取得件数。
	MaxLimit = 100
	// TrendingDefaultLimit は/api/trendingのデフォルト取得件数。
	TrendingDefaultLimit = 4
	// TrendingMaxLimit は/api/trendingの最大取得件数。
	TrendingMaxLimit = 10
)

// Service は記事一覧・トレンド・ソース情報の読み取りサービス。
// 取り込みパイプラインの成果物に対する純粋な読み取りのみを行う。
type Service struct {
	repo    repository.ArticleRepository
	sources []model.Source
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ArticleRepository, sources []model.Source) *Service {
	return &Service{
		repo:    repo,
		sources: sources,
	}
}

// ListArticles は記事一覧を公開日時の降順で返す。
// skipは0以上、limitは1以上MaxLimit以下でなければならず、
// 範囲外の値は*model.APIErrorとして拒否される。
func (s *Service) ListArticles(ctx context.Context, skip, limit int, source string) ([]*model.Article, error) {
	if skip < 0 {
		return nil, model.NewInvalidSkipError(strconv.Itoa(skip))
	}
	if limit < 1 || limit > MaxLimit {
		return nil, model.NewInvalidLimitError(strconv.Itoa(limit), 1, MaxLimit)
	}

	return s.repo.List(ctx, skip, limit, source)
}

// Trending は直近の記事を返す。
// limitは1以上TrendingMaxLimit以下でなければならない。
func (s *Service) Trending(ctx context.Context, limit int) ([]*model.Article, error) {
	if limit < 1 || limit > TrendingMaxLimit {
		return nil, model.NewInvalidLimitError(strconv.Itoa(limit), 1, TrendingMaxLimit)
	}

	return s.repo.List(ctx, 0, limit, "")
}

// SourceInfo は設定済みソースと保存記事数を結合した情報。
type SourceInfo struct {
	Name         string
	FeedURL      string
	ArticleCount int
}

// ListSources は設定済みソースの一覧を保存記事数付きで返す。
// ソースの並びは設定順を維持する。
func (s *Service) ListSources(ctx context.Context) ([]SourceInfo, error) {
	counts, err := s.repo.CountBySource(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]SourceInfo, 0, len(s.sources))
	for _, src := range s.sources {
		infos = append(infos, SourceInfo{
			Name:         src.Name,
			FeedURL:      src.FeedURL,
			ArticleCount: counts[src.Name],
		})
	}

	return infos, nil
}
