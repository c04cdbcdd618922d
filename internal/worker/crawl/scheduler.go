package crawl

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/pocketnews/internal/model"
)

// CoordinatorService は1ランの実行インターフェース。
type CoordinatorService interface {
	RunOnce(ctx context.Context) model.RunResult
}

// Scheduler は固定間隔で取り込みランをトリガーする。
// トリガー間隔はランの開始から次のランの開始までで測られる。
// ランの重複実行は許可しない: 前のランが実行中のままトリガーが発火した場合、
// そのトリガーはスキップされ警告が記録される。これによりソースが遅くなっても
// ランが際限なく積み上がることはない。
type Scheduler struct {
	coordinator CoordinatorService
	metrics     MetricsRecorder
	logger      *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(coordinator CoordinatorService, metrics MetricsRecorder, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		metrics:     metrics,
		logger:      logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、以降はコンテキストがキャンセルされるまで
// 間隔ごとにランをトリガーする。
// キャンセル時は保留中のトリガーを破棄し、実行中のランの完了を待ってから返る。
// 実行中のランには中断を伝播しない（各フェッチは個別のタイムアウトで抑えられる）。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止します（実行中のランの完了を待機）")
			s.wg.Wait()
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// trigger はランを1回起動する。前のランが実行中の場合は起動せず、
// スキップを警告ログとメトリクスに記録する。
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("前のランが実行中のためトリガーをスキップしました")
		if s.metrics != nil {
			s.metrics.RecordRunSkipped()
		}
		return
	}

	// スケジューラ停止時にも実行中のランは完了させる。
	// フェッチ単位のタイムアウトが実質的な猶予時間の上限となる。
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.coordinator.RunOnce(runCtx)
	}()
}
