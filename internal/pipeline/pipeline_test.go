package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-web-corpus/pkg/diag"
	"github.com/shouni/go-web-corpus/pkg/httpclient"
	"github.com/shouni/go-web-corpus/pkg/metrics"
	"github.com/shouni/go-web-corpus/pkg/types"
)

func newTestServer(t *testing.T, notFoundHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Hello, World! 123</p><p>the cat</p></body></html>`)
	})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, `<p>the dog</p><div>ignored</div>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		notFoundHits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fastOptions() Options {
	return Options{
		Timeout:        100 * time.Millisecond,
		MaxAttempts:    3,
		Ordered:        true,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	var notFoundHits atomic.Int32
	srv := newTestServer(t, &notFoundHits)

	rec := &diag.Recorder{}
	var progress []types.Progress
	var logBuf bytes.Buffer
	logger := zerolog.New(&logBuf)
	reg := prometheus.NewRegistry()

	opts := fastOptions()
	opts.Diagnostics = rec
	opts.Progress = func(p types.Progress) { progress = append(progress, p) }
	opts.Logger = &logger
	opts.Metrics = metrics.New(reg)

	urls := []string{
		srv.URL + "/one",
		srv.URL + "/missing",
		"ftp://example.com/file",
		srv.URL + "/slow",
		srv.URL + "/two",
	}

	out, err := Run(context.Background(), urls, opts)
	require.NoError(t, err)

	// 完全性: URL数と同数の結果が投入順に並ぶ
	require.Len(t, out.Results, len(urls))
	for i, r := range out.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, urls[i], r.URL)
	}
	assert.Equal(t, "Hello World the cat", out.Results[0].Text)
	assert.Equal(t, "the dog", out.Results[4].Text)
	for _, i := range []int{1, 2, 3} {
		assert.True(t, out.Results[i].Degraded(), "index %d", i)
		assert.Empty(t, out.Results[i].Text)
	}
	assert.True(t, httpclient.IsStatusError(out.Results[1].Err))
	assert.True(t, httpclient.IsTimeout(out.Results[3].Err))
	assert.Equal(t, 2, out.Succeeded())
	assert.Equal(t, 3, out.Degraded())

	// コーパスは劣化したページを空文字列として含む
	assert.Equal(t, "Hello World the cat    the dog", out.Corpus)
	assert.Equal(t, 2, out.Frequency.Count("the"))
	assert.Equal(t, 6, out.Frequency.Total())
	assert.Equal(t, []string{"Hello", "World", "the", "cat", "dog"}, out.Frequency.Words())

	// リトライ上限: 404 も無効なスキームも最大試行回数まで通知される
	assert.Equal(t, int32(3), notFoundHits.Load())
	byURL := map[string]int{}
	for _, e := range rec.Events() {
		assert.Equal(t, diag.LevelWarning, e.Level)
		byURL[e.URL]++
	}
	assert.Equal(t, 3, byURL[srv.URL+"/missing"])
	assert.Equal(t, 3, byURL["ftp://example.com/file"])
	assert.Equal(t, 3, byURL[srv.URL+"/slow"])
	assert.Zero(t, byURL[srv.URL+"/one"])

	// 進捗
	require.Len(t, progress, len(urls))
	assert.True(t, progress[len(progress)-1].Done())

	// バッチID とログ
	_, err = uuid.Parse(out.BatchID)
	assert.NoError(t, err)
	assert.Contains(t, logBuf.String(), out.BatchID)

	assert.Equal(t, float64(2), testutil.ToFloat64(opts.Metrics.Pages.WithLabelValues("ok")))
	assert.Equal(t, float64(3), testutil.ToFloat64(opts.Metrics.Pages.WithLabelValues("degraded")))
}

func TestRun_Unordered(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)

	opts := fastOptions()
	opts.Ordered = false

	urls := []string{srv.URL + "/two", srv.URL + "/one"}
	out, err := Run(context.Background(), urls, opts)
	require.NoError(t, err)

	// /two は遅いため完了順では後になる
	require.Len(t, out.Results, 2)
	assert.Equal(t, 1, out.Results[0].Index)
	assert.Equal(t, "Hello World the cat the dog", out.Corpus)
}

func TestRun_EmptyInput(t *testing.T) {
	var progress []types.Progress
	opts := fastOptions()
	opts.Progress = func(p types.Progress) { progress = append(progress, p) }

	out, err := Run(context.Background(), nil, opts)

	require.NoError(t, err)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	assert.Equal(t, "", out.Corpus)
	assert.Equal(t, 0, out.Frequency.Total())
	require.Len(t, progress, 1)
	assert.Equal(t, 1.0, progress[0].Fraction())
}

func TestRun_ContractErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"negative timeout", func(o *Options) { o.Timeout = -time.Second }},
		{"negative attempts", func(o *Options) { o.MaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			opts := fastOptions()
			opts.Progress = func(types.Progress) { called = true }
			tt.mutate(&opts)

			out, err := Run(context.Background(), []string{"http://example.com"}, opts)

			assert.Error(t, err)
			assert.Nil(t, out)
			assert.False(t, called, "不正な設定ではスケジュールされないべきです")
		})
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	client, err := NewFetcher(Options{})
	require.NoError(t, err)
	assert.Equal(t, httpclient.DefaultHTTPTimeout, client.Timeout())
	assert.Equal(t, 3, client.MaxAttempts())
}

// stubDoer は常に同じ本文を返す httpclient.Doer です。
type stubDoer struct {
	calls atomic.Int32
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       httpBody("<p>stubbed page</p>"),
		Request:    req,
	}, nil
}

func TestRun_CustomHTTPClient(t *testing.T) {
	doer := &stubDoer{}
	opts := fastOptions()
	opts.HTTPClient = doer

	out, err := Run(context.Background(), []string{"https://a.example", "https://b.example"}, opts)

	require.NoError(t, err)
	assert.Equal(t, int32(2), doer.calls.Load())
	assert.Equal(t, "stubbed page stubbed page", out.Corpus)
	assert.Equal(t, 2, out.Frequency.Count("stubbed"))
}

func httpBody(s string) *readCloser {
	return &readCloser{Reader: strings.NewReader(s)}
}

type readCloser struct {
	*strings.Reader
}

func (r *readCloser) Close() error { return nil }
