package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/shouni/go-web-corpus/pkg/diag"
	"github.com/shouni/go-web-corpus/pkg/metrics"
	"github.com/shouni/go-web-corpus/pkg/retry"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 10 * time.Second
	MaxBodySize        = int64(10 * 1024 * 1024) // 10MB: レスポンスボディの最大読み込みサイズ

	// エラーメッセージに含めるボディの最大長
	maxErrorBodyLength = 1024

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// ErrInvalidTimeout は、タイムアウトに負の値が指定されたことを示します。
var ErrInvalidTimeout = errors.New("タイムアウトは正の値である必要があります")

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError は 2xx 以外のステータスコードを示すエラー型です。
// ステータスコードに関わらず、取得試行の失敗としてリトライ対象になります。
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("HTTPステータスコードエラー: ステータスコード %d, ボディなし", e.StatusCode)
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength] + "..."
	}
	return fmt.Sprintf("HTTPステータスコードエラー: ステータスコード %d, ボディ: %s", e.StatusCode, body)
}

// requestError はリクエスト自体を組み立てられないエラーです。
// 通信は行われませんが、他の失敗と同じく1回の試行として数え、最大試行回数までリトライします。
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// FetchError は、すべての試行が失敗した最終的な取得失敗を表します。
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("URL(%s)の取得に失敗しました (%d回試行): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client はHTTP GETと指数バックオフを用いたリトライロジックを管理します。
// New の後は不変であり、複数のゴルーチンから同時に利用できます。
type Client struct {
	httpClient  Doer
	timeout     time.Duration
	retryConfig retry.Config
	sink        diag.Sink
	metrics     *metrics.Metrics
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithMaxRetries は初回を含む最大試行回数を設定します。
func WithMaxRetries(max uint64) ClientOption {
	return func(c *Client) {
		c.retryConfig.MaxAttempts = max
	}
}

// WithBackoff は試行間のバックオフ間隔を設定します。
func WithBackoff(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.retryConfig.InitialInterval = initial
		c.retryConfig.MaxInterval = max
	}
}

// WithDiagnostics は試行失敗の通知先を設定します。
func WithDiagnostics(sink diag.Sink) ClientOption {
	return func(c *Client) {
		c.sink = diag.OrDiscard(sink)
	}
}

// WithMetrics は試行結果を記録するメトリクスを設定します。
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New は、新しいClientを生成します。
// timeout は1回の試行ごとに適用され、0 の場合は DefaultHTTPTimeout を使用します。
func New(timeout time.Duration, options ...ClientOption) (*Client, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w (指定値: %s)", ErrInvalidTimeout, timeout)
	}
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout:     timeout,
		retryConfig: retry.DefaultConfig(),
		sink:        diag.Discard,
	}

	for _, opt := range options {
		opt(c)
	}

	if err := c.retryConfig.Validate(); err != nil {
		return nil, fmt.Errorf("HTTPクライアントの設定エラー: %w", err)
	}

	return c, nil
}

// Timeout は1回の試行に適用されるタイムアウトを返します。
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// MaxAttempts は初回を含む最大試行回数を返します。
func (c *Client) MaxAttempts() int {
	return int(c.retryConfig.MaxAttempts)
}

// addCommonHeaders は共通のHTTPヘッダーを設定します。
func (c *Client) addCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

// FetchBytes はURLからコンテンツを取得し、UTF-8に変換したバイト配列として返します。
// 失敗時は *FetchError を返します。各試行の失敗は診断チャネルへ Warning として通知されます。
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)

	op := func(attempt int) error {
		attempts = attempt
		var fetchErr error
		body, fetchErr = c.doFetch(ctx, rawURL)
		return fetchErr
	}

	notify := func(attempt int, err error) {
		c.sink.Report(diag.Event{
			Level:       diag.LevelWarning,
			URL:         rawURL,
			Attempt:     attempt,
			MaxAttempts: c.MaxAttempts(),
			Message:     describeFailure(err),
			Reason:      err,
		})
	}

	err := retry.Do(
		ctx,
		c.retryConfig,
		fmt.Sprintf("URL(%s)のフェッチ", rawURL),
		op,
		nil,
		notify,
	)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

// doFetch は実際の一度のHTTP GETリクエストを、試行ごとのタイムアウト内で実行します。
// ボディの読み込みも同じ期限内で行います。
func (c *Client) doFetch(ctx context.Context, rawURL string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveAttempt(outcomeOf(err), time.Since(start))
	}()

	if err := validateURL(rawURL); err != nil {
		return nil, &requestError{err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)}
	}
	c.addCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	limitedReader := io.LimitReader(resp.Body, MaxBodySize)
	reader, err := charset.NewReader(limitedReader, resp.Header.Get("Content-Type"))
	if errors.Is(err, io.EOF) {
		// 空のボディ
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}

	body, err = io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return body, nil
}

// validateURL は、リクエスト前にURLの形式とスキームを検証します。
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLのパースエラー: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("無効なURLスキームです。httpまたはhttpsを指定してください: %q", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("URLにホストが含まれていません: %q", rawURL)
	}
	return nil
}

// checkResponse はHTTPレスポンスのステータスコードを評価し、2xx 以外なら *StatusError を返します。
// 呼び出し元が resp.Body.Close() を実行する必要があります。
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength+1))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
	}
}

// isRequestError は、エラーがリクエストを組み立てられなかったことによるものかを判断します。
func isRequestError(err error) bool {
	var reqErr *requestError
	return errors.As(err, &reqErr)
}

// IsTimeout は、エラーが試行ごとのタイムアウトによるものかどうかを判断します。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsStatusError は与えられたエラーが 2xx 以外のHTTPステータスによるものかを判断します。
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

func describeFailure(err error) string {
	switch {
	case IsTimeout(err):
		return "タイムアウト"
	case IsStatusError(err):
		return "HTTPステータスエラー"
	case isRequestError(err):
		return "無効なリクエスト"
	default:
		return "取得エラー"
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case IsTimeout(err):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
