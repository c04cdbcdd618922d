// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/pocketnews/internal/model"
)

// defaultSources はSOURCES未指定時に使用する巡回対象フィード。
var defaultSources = []model.Source{
	{Name: "CoinDesk", FeedURL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
	{Name: "CoinTelegraph", FeedURL: "https://cointelegraph.com/rss"},
	{Name: "CryptoNews", FeedURL: "https://cryptonews.com/news/feed"},
	{Name: "NewsBTC", FeedURL: "https://www.newsbtc.com/feed/"},
}

// defaultImageURL は画像が抽出できなかった記事に設定するプレースホルダー画像。
const defaultImageURL = "https://placehold.co/600x400/1a1a1a/ffffff?text=Pocket+News"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Crawl
	Sources         []model.Source
	CrawlInterval   time.Duration
	FetchTimeout    time.Duration
	FetchMaxSize    int64
	MaxConcurrent   int
	DefaultImageURL string

	// Retention
	RetentionDays int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string

	// Worker
	WorkerMetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはSOURCESの形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	sources, err := parseSources(os.Getenv("SOURCES"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SOURCES: %w", err)
	}
	cfg.Sources = sources

	cfg.CrawlInterval = getEnvDuration("CRAWL_INTERVAL", 5*time.Minute)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.MaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.DefaultImageURL = getEnvString("DEFAULT_IMAGE_URL", defaultImageURL)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseSources はSOURCES環境変数をパースする。
// 形式: "名前=フィードURL" のカンマ区切り（例: "CoinDesk=https://example.com/rss,NewsBTC=https://example.org/feed"）。
// 空文字列の場合はデフォルトのソース一覧を返す。
// 名前の重複、URLの形式不正はエラーとする。
func parseSources(raw string) ([]model.Source, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultSources, nil
	}

	seen := make(map[string]bool)
	var sources []model.Source

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, feedURL, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		feedURL = strings.TrimSpace(feedURL)
		if !ok || name == "" || feedURL == "" {
			return nil, fmt.Errorf("invalid source entry: %q (expected NAME=URL)", pair)
		}

		u, err := url.Parse(feedURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid feed URL for source %q: %q", name, feedURL)
		}

		if seen[name] {
			return nil, fmt.Errorf("duplicate source name: %q", name)
		}
		seen[name] = true

		sources = append(sources, model.Source{Name: name, FeedURL: feedURL})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("SOURCES contains no valid entries")
	}

	return sources, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
