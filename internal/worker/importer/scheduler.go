package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FeedImporter は1フィード分の取り込みを行うインターフェース。
type FeedImporter interface {
	Import(ctx context.Context, feedURL string) (*Result, error)
}

// Scheduler は設定されたフィードを定期的に取り込む。
// semaphoreパターンで同時取得数を制限する。
type Scheduler struct {
	importer       FeedImporter
	feedURLs       []string
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(importer FeedImporter, feedURLs []string, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		importer:       importer,
		feedURLs:       feedURLs,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は起動直後に1回取り込みを行い、その後interval間隔で繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if len(s.feedURLs) == 0 {
		s.logger.Info("取り込み対象のフィードが設定されていません")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("お題取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("feed_count", len(s.feedURLs)),
	)

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("お題取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全フィードを並列に1回取り込み、新規登録したお題の合計数を返す。
// 個々のフィードの失敗はログに記録して他のフィードの処理を続ける。
// コンテキストがキャンセルされた場合は未開始のフィードを取り込まない。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	sem := make(chan struct{}, s.maxConcurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		imported int
	)

feeds:
	for _, feedURL := range s.feedURLs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.logger.Info("停止要求のため残りのフィードの取り込みを中止しました")
			break feeds
		}
		wg.Add(1)

		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.importer.Import(ctx, u)
			if err != nil {
				s.logger.Error("お題の取り込みに失敗しました",
					slog.String("feed_url", u),
					slog.String("error", err.Error()),
				)
			}
			if res != nil {
				mu.Lock()
				imported += res.Imported
				mu.Unlock()
			}
		}(feedURL)
	}

	wg.Wait()
	return imported
}
