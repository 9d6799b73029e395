// Package metrics は、取得パイプラインの Prometheus メトリクスを定義します。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "webcorpus"

// 試行結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics はパイプラインが記録するメトリクスの集合です。
// nil レシーバーでも安全に呼び出せるため、メトリクスを使わない呼び出し元は nil を渡せます。
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	Pages         *prometheus.CounterVec
	InFlight      prometheus.Gauge
}

// New はメトリクスを生成し、reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of HTTP fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_attempt_duration_seconds",
				Help:      "Duration of individual HTTP fetch attempts in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Total number of completed URL tasks, labeled by status.",
			},
			[]string{"status"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of URL tasks currently running.",
			},
		),
	}

	reg.MustRegister(m.FetchAttempts, m.FetchDuration, m.Pages, m.InFlight)
	return m
}

// ObserveAttempt は1回の取得試行の結果と所要時間を記録します。
func (m *Metrics) ObserveAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// TaskStarted は実行中タスク数を増やします。
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// TaskFinished は実行中タスク数を減らし、完了ページ数を記録します。
func (m *Metrics) TaskFinished(degraded bool) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.Pages.WithLabelValues(status).Inc()
}

// Serve は addr で /metrics を公開し、ctx が終了するとサーバーを停止します。
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", addr).Msg("Prometheus メトリクスを公開します")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
