package scraper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-web-corpus/pkg/metrics"
	"github.com/shouni/go-web-corpus/pkg/types"
)

const (
	// ConcurrencyLimit は、同時に実行されるURLタスク数の上限です。
	ConcurrencyLimit = 5
)

// ProgressFunc は、タスクが1件完了するたびに完了順で呼び出されます。
// 呼び出しは常に単一のゴルーチンから行われます。
type ProgressFunc func(types.Progress)

// Scraper はURLのバッチを並列処理する機能を提供するインターフェースです。
type Scraper interface {
	ScrapeInParallel(ctx context.Context, urls []string, onProgress ProgressFunc) []types.PageResult
}

// ParallelScraper は Scraper インターフェースを実装する並列処理構造体です。
type ParallelScraper struct {
	task           Task
	maxConcurrency int
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// Option は ParallelScraper の設定を行うための関数型です。
type Option func(*ParallelScraper)

// WithConcurrency は最大同時実行数を設定します。1未満の値は無視されます。
func WithConcurrency(n int) Option {
	return func(s *ParallelScraper) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithLogger はバッチ単位のログ出力先を設定します。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *ParallelScraper) {
		s.logger = logger
	}
}

// WithMetrics はタスク単位のメトリクスを設定します。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ParallelScraper) {
		s.metrics = m
	}
}

// NewParallelScraper は ParallelScraper を初期化します。
func NewParallelScraper(task Task, opts ...Option) *ParallelScraper {
	s := &ParallelScraper{
		task:           task,
		maxConcurrency: ConcurrencyLimit,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeInParallel は Scraper インターフェースのメソッドを実装します。
// 結果は完了順に並び、各要素は投入順の Index を保持します。
// すべてのタスクが完了するまで戻りません。
func (s *ParallelScraper) ScrapeInParallel(ctx context.Context, urls []string, onProgress ProgressFunc) []types.PageResult {
	if onProgress == nil {
		onProgress = func(types.Progress) {}
	}

	total := len(urls)
	if total == 0 {
		onProgress(types.Progress{Completed: 0, Total: 0})
		return []types.PageResult{}
	}

	start := time.Now()
	s.logger.Debug().
		Int("total_urls", total).
		Int("concurrency", s.maxConcurrency).
		Msg("並列スクレイピング開始")

	// 全件分のバッファを確保し、送信側がブロックしないようにする
	resultsChan := make(chan types.PageResult, total)

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	// 上限到達時に g.Go がブロックするため、投入は別ゴルーチンで行い集約側を止めない
	go func() {
		for i, url := range urls {
			g.Go(func() error {
				resultsChan <- s.runOne(ctx, i, url)
				return nil
			})
		}
		_ = g.Wait()
		close(resultsChan)
	}()

	finalResults := make([]types.PageResult, 0, total)
	degraded := 0
	for res := range resultsChan {
		finalResults = append(finalResults, res)
		if res.Degraded() {
			degraded++
		}
		onProgress(types.Progress{Completed: len(finalResults), Total: total})
	}

	s.logger.Debug().
		Int("total_urls", total).
		Int("degraded", degraded).
		Dur("elapsed", time.Since(start)).
		Msg("並列スクレイピング完了")

	return finalResults
}

// runOne は1つのURLタスクを実行し、投入順のインデックスを付けた結果を返します。
func (s *ParallelScraper) runOne(ctx context.Context, index int, url string) types.PageResult {
	s.metrics.TaskStarted()
	text, err := s.task.Run(ctx, url)
	if err != nil {
		text = ""
	}
	res := types.PageResult{
		Index: index,
		URL:   url,
		Text:  text,
		Err:   err,
	}
	s.metrics.TaskFinished(res.Degraded())
	return res
}
