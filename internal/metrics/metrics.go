// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/pocketnews/internal/model"
)

// Collector は取り込みパイプラインのPrometheusメトリクスを収集する。
// crawl.MetricsRecorderインターフェースを実装する。
type Collector struct {
	runs           prometheus.Counter
	runsSkipped    prometheus.Counter
	runDuration    prometheus.Histogram
	fetchSuccess   *prometheus.CounterVec
	fetchFail      *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	articlesSeen   prometheus.Counter
	articlesStored prometheus.Counter
	duplicates     prometheus.Counter
	normalizeFail  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_crawl_runs_total",
			Help: "完了した取り込みランの合計数",
		}),
		runsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_crawl_runs_skipped_total",
			Help: "前のランが実行中のためスキップされたトリガーの合計数",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pocketnews_crawl_run_duration_seconds",
			Help:    "取り込みラン全体の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketnews_fetch_success_total",
			Help: "ソース別のフェッチ成功の合計数",
		}, []string{"source"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketnews_fetch_fail_total",
			Help: "ソース別・失敗種別のフェッチ失敗の合計数",
		}, []string{"source", "kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketnews_fetch_http_status_total",
			Help: "HTTPステータスコード別のフィードレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pocketnews_fetch_latency_seconds",
			Help:    "ソース単位フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_articles_seen_total",
			Help: "正規化に成功した記事候補の合計数",
		}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_articles_inserted_total",
			Help: "新規に保存された記事の合計数",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_articles_duplicate_total",
			Help: "URLが既存のためスキップされた記事の合計数",
		}),
		normalizeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pocketnews_normalize_fail_total",
			Help: "正規化に失敗したエントリの合計数",
		}),
	}

	reg.MustRegister(
		c.runs,
		c.runsSkipped,
		c.runDuration,
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesSeen,
		c.articlesStored,
		c.duplicates,
		c.normalizeFail,
	)

	return c
}

// RecordRun は1ランの集計結果を記録する。
func (c *Collector) RecordRun(result model.RunResult) {
	c.runs.Inc()
	c.runDuration.Observe(result.Duration.Seconds())
	c.articlesSeen.Add(float64(result.Seen))
	c.articlesStored.Add(float64(result.Inserted))
	c.duplicates.Add(float64(result.Duplicates))
}

// RecordRunSkipped はランの重複によるトリガースキップを記録する。
func (c *Collector) RecordRunSkipped() {
	c.runsSkipped.Inc()
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(source string) {
	c.fetchSuccess.WithLabelValues(source).Inc()
}

// RecordFetchFailure はフェッチ失敗を失敗種別とともに記録する。
func (c *Collector) RecordFetchFailure(source string, kind model.FetchErrorKind) {
	c.fetchFail.WithLabelValues(source, string(kind)).Inc()
}

// RecordHTTPStatus はフィードレスポンスのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はソース単位フェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordNormalizeFailures は正規化失敗エントリ数を記録する。
func (c *Collector) RecordNormalizeFailures(count int) {
	if count > 0 {
		c.normalizeFail.Add(float64(count))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのスクレイプ用に独立したポートで公開される。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
