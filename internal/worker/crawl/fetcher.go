// Package crawl はニュースフィードの定期取り込みパイプラインを提供する。
// スケジューラ、コーディネーター、ソース単位のフェッチャー、
// エントリの正規化を含む。
package crawl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/hitoshi/pocketnews/internal/model"
	"github.com/hitoshi/pocketnews/internal/security"
)

// maxEntriesPerSource は1ソース1ランあたりの処理エントリ上限。
// 直近のニュースのみを扱うユースケースに合わせたポリシー値であり、
// ラン単位のコストを抑えるための上限でもある。
const maxEntriesPerSource = 10

// EntryNormalizer はエントリ正規化のインターフェース。
type EntryNormalizer interface {
	Normalize(item *gofeed.Item, sourceName string) (*model.Article, error)
}

// FetchOutcome は1ソースのフェッチ・正規化の結果を表す。
type FetchOutcome struct {
	// Articles は正規化に成功した記事候補。重複排除は保存時に行われる。
	Articles []*model.Article
	// EntryErrors は正規化に失敗してスキップされたエントリ数。
	EntryErrors int
	// HTTPStatus はレスポンスのHTTPステータスコード（リクエスト自体が失敗した場合は0）。
	HTTPStatus int
}

// SourceFetcher は1ソースのHTTPフェッチ、パース、エントリ正規化を行う。
// SSRF検証付きのHTTPクライアントで1回のGETを発行し、
// gofeedでパースした直近のエントリをEntryNormalizerに委譲する。
type SourceFetcher struct {
	guard       security.SSRFGuardService
	normalizer  EntryNormalizer
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewSourceFetcher はSourceFetcherの新しいインスタンスを生成する。
func NewSourceFetcher(
	guard security.SSRFGuardService,
	normalizer EntryNormalizer,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *SourceFetcher {
	return &SourceFetcher{
		guard:       guard,
		normalizer:  normalizer,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は1ソースのフィードを取得し、正規化済みの記事候補を返す。
// 失敗の分離はエントリ単位: 1エントリの正規化失敗はカウントして後続を継続する。
// ソース単位の失敗（リクエスト失敗、200以外、パース失敗）は*model.FetchErrorを返す。
func (f *SourceFetcher) Fetch(ctx context.Context, source model.Source) (*FetchOutcome, error) {
	if err := f.guard.ValidateURL(source.FeedURL); err != nil {
		f.logger.Error("フィードURLのSSRF検証に失敗しました",
			slog.String("source", source.Name),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, &model.FetchError{Kind: model.FetchNetworkUnreachable, Source: source.Name, Err: err}
	}

	client := f.guard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.FeedURL, nil)
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchNetworkUnreachable, Source: source.Name, Err: err}
	}

	req.Header.Set("User-Agent", "PocketNews/1.0 Crawler")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		kind := classifyTransportError(err)
		f.logger.Warn("フィードのHTTPリクエストに失敗しました",
			slog.String("source", source.Name),
			slog.String("feed_url", source.FeedURL),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, &model.FetchError{Kind: kind, Source: source.Name, Err: err}
	}
	defer resp.Body.Close()

	// 成功は厳密に200のみ。それ以外はこのランにおける当該ソースの処理を中断する。
	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("フィードが200以外のステータスを返しました",
			slog.String("source", source.Name),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return &FetchOutcome{HTTPStatus: resp.StatusCode},
			&model.FetchError{Kind: model.FetchBadStatus, Source: source.Name, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return &FetchOutcome{HTTPStatus: resp.StatusCode},
			&model.FetchError{Kind: model.FetchNetworkUnreachable, Source: source.Name, Err: err}
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		f.logger.Warn("フィードのパースに失敗しました",
			slog.String("source", source.Name),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		return &FetchOutcome{HTTPStatus: resp.StatusCode},
			&model.FetchError{Kind: model.FetchParseFailure, Source: source.Name, Err: err}
	}

	items := parsedFeed.Items
	if len(items) > maxEntriesPerSource {
		items = items[:maxEntriesPerSource]
	}

	outcome := &FetchOutcome{HTTPStatus: resp.StatusCode}
	for _, item := range items {
		if item == nil {
			continue
		}

		article, normErr := f.normalizer.Normalize(item, source.Name)
		if normErr != nil {
			// エントリ単位の失敗。同一フィードの後続エントリは処理を継続する。
			outcome.EntryErrors++
			f.logger.Warn("エントリの正規化に失敗しました",
				slog.String("source", source.Name),
				slog.String("error", normErr.Error()),
			)
			continue
		}
		outcome.Articles = append(outcome.Articles, article)
	}

	return outcome, nil
}

// classifyTransportError はトランスポート層のエラーをFetchErrorKindに分類する。
func classifyTransportError(err error) model.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FetchTimeout
	}
	return model.FetchNetworkUnreachable
}
