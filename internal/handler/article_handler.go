// Package handler は読み取りAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/pocketnews/internal/article"
	"github.com/hitoshi/pocketnews/internal/middleware"
	"github.com/hitoshi/pocketnews/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	// ListArticles は記事一覧を公開日時の降順で返す。
	ListArticles(ctx context.Context, skip, limit int, source string) ([]*model.Article, error)
	// Trending は直近の記事を返す。
	Trending(ctx context.Context, limit int) ([]*model.Article, error)
	// ListSources は設定済みソースの一覧を保存記事数付きで返す。
	ListSources(ctx context.Context) ([]article.SourceInfo, error)
}

// ArticleHandler は記事読み取りのHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

// --- レスポンス型 ---

// articleResponse は記事1件のレスポンス。
// timestampは公開日時のエポックミリ秒。
type articleResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	ImageURL      string `json:"imageUrl"`
	Source        string `json:"source"`
	Timestamp     int64  `json:"timestamp"`
	DateEstimated bool   `json:"dateEstimated"`
}

// articleListResponse は記事一覧のレスポンス。
type articleListResponse struct {
	Articles []articleResponse `json:"articles"`
}

// sourceResponse はソース1件のレスポンス。
type sourceResponse struct {
	Name         string `json:"name"`
	FeedURL      string `json:"feedUrl"`
	ArticleCount int    `json:"articleCount"`
}

// sourceListResponse はソース一覧のレスポンス。
type sourceListResponse struct {
	Sources []sourceResponse `json:"sources"`
}

// toArticleListResponse はモデルをレスポンス型に変換する。
func toArticleListResponse(articles []*model.Article) articleListResponse {
	resp := articleListResponse{Articles: make([]articleResponse, 0, len(articles))}
	for _, a := range articles {
		resp.Articles = append(resp.Articles, articleResponse{
			ID:            a.ID,
			Title:         a.Title,
			Description:   a.Description,
			URL:           a.URL,
			ImageURL:      a.ImageURL,
			Source:        a.Source,
			Timestamp:     a.TimestampMillis(),
			DateEstimated: a.DateEstimated,
		})
	}
	return resp
}

// ListArticles は記事一覧を取得する。
// GET /api/articles?skip=&limit=&source=
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	skip, ok := parseIntQuery(w, r, "skip", 0, model.NewInvalidSkipError)
	if !ok {
		return
	}
	limit, ok := parseIntQuery(w, r, "limit", article.DefaultLimit, func(v string) *model.APIError {
		return model.NewInvalidLimitError(v, 1, article.MaxLimit)
	})
	if !ok {
		return
	}
	source := r.URL.Query().Get("source")

	articles, err := h.service.ListArticles(r.Context(), skip, limit, source)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, toArticleListResponse(articles))
}

// Trending は直近の記事を取得する。
// GET /api/trending?limit=
func (h *ArticleHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", article.TrendingDefaultLimit, func(v string) *model.APIError {
		return model.NewInvalidLimitError(v, 1, article.TrendingMaxLimit)
	})
	if !ok {
		return
	}

	articles, err := h.service.Trending(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, toArticleListResponse(articles))
}

// ListSources は設定済みソースの一覧を取得する。
// GET /api/sources
func (h *ArticleHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.ListSources(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := sourceListResponse{Sources: make([]sourceResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Sources = append(resp.Sources, sourceResponse{
			Name:         info.Name,
			FeedURL:      info.FeedURL,
			ArticleCount: info.ArticleCount,
		})
	}

	writeJSON(w, resp)
}

// parseIntQuery はクエリパラメータを整数としてパースする。
// パラメータ未指定の場合はdefaultValを返す。
// 整数としてパースできない場合はエラーレスポンスを書き込みfalseを返す。
func parseIntQuery(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	defaultVal int,
	newErr func(value string) *model.APIError,
) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newErr(raw))
		return 0, false
	}
	return v, true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// バリデーションエラーは400、それ以外は詳細をログに残して500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	slog.Error("request handling failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
