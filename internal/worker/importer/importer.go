// Package importer はRSS/Atomフィードからお題を取り込むバックグラウンド処理を提供する。
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/wordcloud/internal/metrics"
)

// QuestionStore はお題の登録インターフェース。
type QuestionStore interface {
	// Import はお題を登録し、新規に作成された場合はtrueを返す。
	Import(ctx context.Context, text string) (bool, error)
}

// URLGuard は取得先URLの検証と安全なHTTPクライアントの生成を行うインターフェース。
type URLGuard interface {
	Validate(rawURL string) error
	Client(timeout time.Duration) *http.Client
}

// Result は1フィード分の取り込み結果。
type Result struct {
	URL      string
	Items    int
	Imported int
	Skipped  int
}

// Importer はフィードを取得してお題として登録する。
type Importer struct {
	store       QuestionStore
	guard       URLGuard
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewImporter はImporterを生成する。
func NewImporter(
	store QuestionStore,
	guard URLGuard,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Importer{
		store:       store,
		guard:       guard,
		metrics:     collector,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Import は1つのフィードを取得し、各エントリのタイトルをお題として登録する。
// タイトルが空のエントリは説明文を使う。既存と同じ本文のお題は登録しない。
// URLがHTMLページを返した場合は、head内のRSS/Atomリンクを1回だけたどる。
func (im *Importer) Import(ctx context.Context, feedURL string) (*Result, error) {
	start := time.Now()

	body, contentType, err := im.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if isHTML(contentType) {
		discovered, ok := discoverFeedURL(body, feedURL)
		if !ok {
			return nil, fmt.Errorf("HTMLページにフィードのリンクが見つかりません: %s", feedURL)
		}
		im.logger.Debug("HTMLページからフィードを検出しました",
			slog.String("page_url", feedURL),
			slog.String("feed_url", discovered),
		)
		body, _, err = im.fetch(ctx, discovered)
		if err != nil {
			return nil, err
		}
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	result := &Result{URL: feedURL}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		result.Items++

		text := item.Title
		if text == "" {
			text = item.Description
		}
		created, err := im.store.Import(ctx, text)
		if err != nil {
			return result, err
		}
		if created {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	im.metrics.RecordQuestionsImported(result.Imported)
	im.logger.Info("お題の取り込みが完了しました",
		slog.String("feed_url", feedURL),
		slog.Int("items_total", result.Items),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

// fetch はURLを検証してから取得し、本文とContent-Typeを返す。
// 本文はmaxBodySizeで切り詰める。
func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := im.guard.Validate(rawURL); err != nil {
		return nil, "", fmt.Errorf("取得先URLの検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "WordCloud/1.0 Question Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.5, */*;q=0.1")

	resp, err := im.guard.Client(im.timeout).Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
