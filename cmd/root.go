package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shouni/go-web-corpus/internal/config"
	"github.com/shouni/go-web-corpus/internal/pipeline"
	"github.com/shouni/go-web-corpus/pkg/diag"
	"github.com/shouni/go-web-corpus/pkg/metrics"
)

const appName = "web-corpus"

// AppFlags はこのアプリケーション固有の永続フラグを保持します。
// --config と --verbose は clibase.Flags が保持します。
type AppFlags struct {
	TimeoutSec  int
	MaxRetries  int
	LogFile     string
	MetricsAddr string
}

var Flags AppFlags

// appContext は PersistentPreRunE で組み立てられ、各サブコマンドが共有する依存関係です。
type appContext struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	warnings *diag.Recorder
	closers  []io.Closer
}

var app *appContext

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := clibase.NewRootCmd(appName, addAppPersistentFlags, initApp)
	cmd.Short = "複数のWebページから英語の本文を並列に収集し、コーパスと単語頻度を生成するツール"
	cmd.Long = `複数のURLを最大5件ずつ並列に取得し、段落テキストから英字のみを抽出して
1つのコーパスと単語頻度表にまとめます (scraper)。単一URLの抽出結果の確認 (extract) も行えます。`
	cmd.SilenceUsage = true
	cmd.PersistentPostRunE = closeApp
	return cmd
}

func init() {
	rootCmd.AddCommand(scraperCmd, extractCmd)
}

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&Flags.TimeoutSec, "timeout", config.DefaultTimeoutSec, "1回の取得試行のタイムアウト時間（秒）")
	pf.IntVar(&Flags.MaxRetries, "max-retries", config.DefaultMaxRetries, "1URLあたりの最大試行回数（初回を含む）")
	pf.StringVar(&Flags.LogFile, "log-file", "", "ログをローテーション付きでファイルへ出力する")
	pf.StringVar(&Flags.MetricsAddr, "metrics-addr", "", "Prometheus メトリクスを公開するアドレス (例: :9100)")
}

// initApp は設定を読み込み、ロガーとメトリクスを初期化します。
func initApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(clibase.Flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みエラー: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定エラー: %w", err)
	}

	a := &appContext{cfg: cfg, warnings: &diag.Recorder{}}
	a.logger = a.newLogger(cmd.ErrOrStderr())

	if cfg.Source != "" {
		a.logger.Debug().Str("path", cfg.Source).Msg("設定ファイルを読み込みました")
	}
	a.logger.Debug().
		Int("timeout_sec", cfg.TimeoutSec).
		Int("max_retries", cfg.MaxRetries).
		Bool("ordered", cfg.Ordered).
		Msg("HTTPクライアントの設定")

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		a.metrics = metrics.New(reg)
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr, reg, a.logger); err != nil {
				a.logger.Error().Err(err).Msg("メトリクスサーバーの起動に失敗しました")
			}
		}()
	}

	app = a
	return nil
}

func closeApp(cmd *cobra.Command, args []string) error {
	if app == nil {
		return nil
	}
	for _, c := range app.closers {
		_ = c.Close()
	}
	return nil
}

// applyFlags は明示的に指定されたフラグだけを設定へ反映します。
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.TimeoutSec = Flags.TimeoutSec
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = Flags.MaxRetries
	}
	if flags.Changed("log-file") {
		cfg.LogFile = Flags.LogFile
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = Flags.MetricsAddr
	}
	if clibase.Flags.Verbose {
		cfg.LogLevel = "debug"
	}
}

// newLogger は設定に応じたロガーを生成します。ログファイル指定時は lumberjack でローテーションします。
func (a *appContext) newLogger(stderr io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(a.cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	if a.cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   a.cfg.LogFile,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		}
		a.closers = append(a.closers, rotator)
		w = rotator
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", appName).Logger()
}

// pipelineOptions は共有設定からバッチ実行の設定を組み立てます。
func (a *appContext) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Timeout:     time.Duration(a.cfg.TimeoutSec) * time.Second,
		MaxAttempts: a.cfg.MaxRetries,
		Ordered:     a.cfg.Ordered,
		Diagnostics: diag.Multi(diag.NewLogSink(a.logger), a.warnings),
		Logger:      &a.logger,
		Metrics:     a.metrics,
	}
}

// Execute は rootCmd を実行します。SIGINT/SIGTERM で処理中のバッチはキャンセルされます。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
