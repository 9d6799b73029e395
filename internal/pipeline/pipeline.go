// Package pipeline は Fetcher、Extractor、URLタスク、スケジューラー、集約を組み合わせ、
// URLのバッチ1回分を実行します。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shouni/go-web-corpus/pkg/aggregate"
	"github.com/shouni/go-web-corpus/pkg/diag"
	"github.com/shouni/go-web-corpus/pkg/extract"
	"github.com/shouni/go-web-corpus/pkg/httpclient"
	"github.com/shouni/go-web-corpus/pkg/metrics"
	"github.com/shouni/go-web-corpus/pkg/retry"
	"github.com/shouni/go-web-corpus/pkg/scraper"
	"github.com/shouni/go-web-corpus/pkg/types"
)

// Options はバッチ実行の設定です。ゼロ値のフィールドには既定値が使われます。
type Options struct {
	// Timeout は1回の取得試行に適用されるタイムアウトです。0 の場合は httpclient.DefaultHTTPTimeout。
	Timeout time.Duration
	// MaxAttempts は初回を含む1URLあたりの最大試行回数です。0 の場合は retry.DefaultMaxAttempts。
	MaxAttempts int
	// Ordered が true の場合、集約前に結果を投入順へ並べ替えます。
	Ordered bool

	// InitialBackoff と MaxBackoff は試行間の待機時間です。0 の場合は retry の既定値。
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Diagnostics diag.Sink
	Progress    scraper.ProgressFunc
	Logger      *zerolog.Logger
	Metrics     *metrics.Metrics
	// HTTPClient はテストなどで通信処理を差し替えるために使用します。
	HTTPClient httpclient.Doer
}

// Output はバッチ1回分の結果です。
type Output struct {
	BatchID string
	// Results は Ordered の場合は投入順、そうでなければ完了順です。
	Results   []types.PageResult
	Corpus    string
	Frequency *aggregate.WordFrequency
}

// Succeeded は劣化しなかったページ数を返します。
func (o *Output) Succeeded() int {
	n := 0
	for _, r := range o.Results {
		if !r.Degraded() {
			n++
		}
	}
	return n
}

// Degraded は空の結果に劣化したページ数を返します。
func (o *Output) Degraded() int {
	return len(o.Results) - o.Succeeded()
}

// NewFetcher は opts に従って Fetcher を生成します。設定が不正な場合はエラーを返します。
func NewFetcher(opts Options) (*httpclient.Client, error) {
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("最大試行回数は1以上である必要があります (指定値: %d)", opts.MaxAttempts)
	}
	attempts := uint64(opts.MaxAttempts)
	if attempts == 0 {
		attempts = retry.DefaultMaxAttempts
	}

	clientOpts := []httpclient.ClientOption{
		httpclient.WithMaxRetries(attempts),
		httpclient.WithDiagnostics(opts.Diagnostics),
		httpclient.WithMetrics(opts.Metrics),
	}
	if opts.InitialBackoff > 0 || opts.MaxBackoff > 0 {
		def := retry.DefaultConfig()
		initial, max := opts.InitialBackoff, opts.MaxBackoff
		if initial <= 0 {
			initial = def.InitialInterval
		}
		if max <= 0 {
			max = def.MaxInterval
		}
		clientOpts = append(clientOpts, httpclient.WithBackoff(initial, max))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, httpclient.WithHTTPClient(opts.HTTPClient))
	}

	return httpclient.New(opts.Timeout, clientOpts...)
}

// NewTask は opts に従って URLタスクを生成します。
func NewTask(opts Options) (*scraper.URLTask, error) {
	fetcher, err := NewFetcher(opts)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.NewExtractor(fetcher)
	if err != nil {
		return nil, fmt.Errorf("Extractorの初期化エラー: %w", err)
	}
	return scraper.NewURLTask(extractor, opts.Diagnostics)
}

// Run は urls を並列に処理し、コーパスと単語頻度表を返します。
// 設定が不正な場合は何もスケジュールせずにエラーを返します。
// 個々のURLの失敗はエラーにならず、空の結果として Output に含まれます。
func Run(ctx context.Context, urls []string, opts Options) (*Output, error) {
	task, err := NewTask(opts)
	if err != nil {
		return nil, fmt.Errorf("パイプラインの初期化エラー: %w", err)
	}

	batchID := uuid.NewString()
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("batch_id", batchID).Logger()
	}

	logger.Info().Int("urls", len(urls)).Msg("バッチ処理を開始します")
	start := time.Now()

	s := scraper.NewParallelScraper(task,
		scraper.WithLogger(logger),
		scraper.WithMetrics(opts.Metrics),
	)
	results := s.ScrapeInParallel(ctx, urls, opts.Progress)

	if opts.Ordered {
		results = aggregate.SortBySubmission(results)
	}
	agg := aggregate.Aggregate(results)

	out := &Output{
		BatchID:   batchID,
		Results:   results,
		Corpus:    agg.Corpus,
		Frequency: agg.Frequency,
	}

	logger.Info().
		Int("succeeded", out.Succeeded()).
		Int("degraded", out.Degraded()).
		Int("tokens", out.Frequency.Total()).
		Dur("elapsed", time.Since(start)).
		Msg("バッチ処理が完了しました")

	return out, nil
}
