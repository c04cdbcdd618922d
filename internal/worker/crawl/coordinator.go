package crawl

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hitoshi/pocketnews/internal/model"
)

// SourceFetcherService はソース単位フェッチの実行インターフェース。
type SourceFetcherService interface {
	Fetch(ctx context.Context, source model.Source) (*FetchOutcome, error)
}

// ArticleStore は取り込みパイプラインが依存する永続化の窓口。
// URLによる存在確認と挿入をアトミックに行う。
type ArticleStore interface {
	SaveIfNew(ctx context.Context, article *model.Article) (bool, error)
}

// MetricsRecorder は取り込みパイプラインのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRun(result model.RunResult)
	RecordRunSkipped()
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string, kind model.FetchErrorKind)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordNormalizeFailures(count int)
}

// Coordinator は1ランにおける全ソースの並行フェッチを統括する。
// ソースごとのタスクは完全に分離されており、1ソースの失敗（panicを含む）は
// RunResultに記録されるだけで、兄弟タスクにもラン全体にも波及しない。
type Coordinator struct {
	sources        []model.Source
	fetcher        SourceFetcherService
	store          ArticleStore
	metrics        MetricsRecorder
	logger         *slog.Logger
	maxConcurrency int
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewCoordinator(
	sources []model.Source,
	fetcher SourceFetcherService,
	store ArticleStore,
	metrics MetricsRecorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Coordinator{
		sources:        sources,
		fetcher:        fetcher,
		store:          store,
		metrics:        metrics,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// sourceResult は1ソースタスクの集計結果。
type sourceResult struct {
	seen        int
	inserted    int
	duplicates  int
	entryErrors int
	failed      bool
}

// RunOnce は設定済みの全ソースを1回ずつ並行にフェッチし、結果を集計して返す。
// semaphoreパターンで最大並列数を制御し、全タスクの完了を待ってから返る。
// ラン内での再試行は行わない。失敗したソースは次回のスケジュールで自然に再試行される。
func (c *Coordinator) RunOnce(ctx context.Context) model.RunResult {
	start := time.Now()

	c.logger.Info("取り込みランを開始します",
		slog.Int("source_count", len(c.sources)),
	)

	sem := make(chan struct{}, c.maxConcurrency)
	results := make([]sourceResult, len(c.sources))
	var wg sync.WaitGroup

	for i, source := range c.sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(idx int, src model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 1ソースのpanicをラン全体の失敗にしない
			defer func() {
				if rec := recover(); rec != nil {
					c.logger.Error("ソースタスクでpanicが発生しました",
						slog.String("source", src.Name),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)
					results[idx].failed = true
				}
			}()

			results[idx] = c.processSource(ctx, src)
		}(i, source)
	}

	wg.Wait()

	result := model.RunResult{Duration: time.Since(start)}
	for _, r := range results {
		result.Seen += r.seen
		result.Inserted += r.inserted
		result.Duplicates += r.duplicates
		result.EntryErrors += r.entryErrors
		if r.failed {
			result.SourceFailures++
		}
	}

	if c.metrics != nil {
		c.metrics.RecordRun(result)
	}

	c.logger.Info("取り込みランが完了しました",
		slog.Int("seen", result.Seen),
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("entry_errors", result.EntryErrors),
		slog.Int("source_failures", result.SourceFailures),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)

	return result
}

// processSource は1ソースのフェッチと記事保存を行う。
// 記事単位の保存失敗はカウントして後続の記事の処理を継続する。
func (c *Coordinator) processSource(ctx context.Context, source model.Source) sourceResult {
	fetchStart := time.Now()
	outcome, err := c.fetcher.Fetch(ctx, source)

	if c.metrics != nil {
		c.metrics.RecordFetchLatency(time.Since(fetchStart))
		if outcome != nil && outcome.HTTPStatus != 0 {
			c.metrics.RecordHTTPStatus(outcome.HTTPStatus)
		}
	}

	if err != nil {
		if c.metrics != nil {
			kind := model.FetchNetworkUnreachable
			var fetchErr *model.FetchError
			if errors.As(err, &fetchErr) {
				kind = fetchErr.Kind
			}
			c.metrics.RecordFetchFailure(source.Name, kind)
		}
		return sourceResult{failed: true}
	}

	res := sourceResult{
		seen:        len(outcome.Articles),
		entryErrors: outcome.EntryErrors,
	}

	if c.metrics != nil {
		c.metrics.RecordFetchSuccess(source.Name)
		c.metrics.RecordNormalizeFailures(outcome.EntryErrors)
	}

	for _, article := range outcome.Articles {
		inserted, saveErr := c.store.SaveIfNew(ctx, article)
		if saveErr != nil {
			// 記事単位の保存失敗。ランは継続する。
			res.entryErrors++
			c.logger.Error("記事の保存に失敗しました",
				slog.String("source", source.Name),
				slog.String("url", article.URL),
				slog.String("error", saveErr.Error()),
			)
			continue
		}
		if inserted {
			res.inserted++
			c.logger.Info("記事を保存しました",
				slog.String("source", source.Name),
				slog.String("title", article.Title),
				slog.String("url", article.URL),
			)
		} else {
			// 既存URL。重なり合うランをまたいで頻繁に起きる正常系。
			res.duplicates++
		}
	}

	return res
}
