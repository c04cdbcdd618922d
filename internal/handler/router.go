package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pocketnews/internal/metrics"
	"github.com/hitoshi/pocketnews/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	ArticleService    ArticleServiceInterface
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// MetricsGatherer が設定されている場合は/metricsを公開する。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は読み取りAPIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit
//
// /healthと/metricsはレート制限の対象外とする（監視系からの定期アクセスのため）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	articleHandler := NewArticleHandler(deps.ArticleService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// 死活確認・メトリクス（レート制限なし）
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// 読み取りAPI
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/articles", articleHandler.ListArticles)
			r.Get("/trending", articleHandler.Trending)
			r.Get("/sources", articleHandler.ListSources)
		})
	})

	return r
}
