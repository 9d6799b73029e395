// Package config はコマンドラインツールの設定値を読み込みます。
// 優先順位は 既定値 < 設定ファイル < 環境変数 < コマンドラインフラグ です。
// フラグの適用は cmd パッケージが行います。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppName は設定ファイル探索に用いるアプリケーション名です。
	AppName = "go-web-corpus"
	// ConfigFileName は XDG 設定ディレクトリ配下で探索するファイル名です。
	ConfigFileName = "config.yaml"
	// EnvPrefix は設定を上書きする環境変数の接頭辞です。
	EnvPrefix = "WEB_CORPUS_"

	DefaultMaxRetries = 3
	DefaultTimeoutSec = 10
	DefaultLogLevel   = "info"
)

// ErrConfigNotFound は明示的に指定された設定ファイルが存在しないことを示します。
var ErrConfigNotFound = errors.New("設定ファイルが見つかりません")

// Config はツール全体の設定です。
type Config struct {
	// MaxRetries は初回を含む1URLあたりの最大試行回数です。
	MaxRetries int `yaml:"max_retries"`
	// TimeoutSec は1回の試行に適用されるタイムアウト秒数です。
	TimeoutSec  int    `yaml:"per_attempt_timeout_seconds"`
	Ordered     bool   `yaml:"ordered"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Source は読み込んだ設定ファイルのパスです。読み込んでいない場合は空です。
	Source string `yaml:"-"`
}

// Default は既定値の設定を返します。
func Default() *Config {
	return &Config{
		MaxRetries: DefaultMaxRetries,
		TimeoutSec: DefaultTimeoutSec,
		Ordered:    true,
		LogLevel:   DefaultLogLevel,
	}
}

// searchConfigFile は XDG 設定ディレクトリから設定ファイルを探します。
var searchConfigFile = func() (string, error) {
	return xdg.SearchConfigFile(AppName + "/" + ConfigFileName)
}

// Load は設定を読み込みます。
// path が空の場合は XDG 設定ディレクトリを探索し、見つからなければ既定値を使用します。
// path を指定した場合、そのファイルが存在しなければ ErrConfigNotFound を返します。
func Load(path string) (*Config, error) {
	// .env は存在しなくても問題ない
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		if found, err := searchConfigFile(); err == nil {
			path = found
		}
	} else if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("設定ファイルの確認に失敗しました: %w", err)
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗しました (%s): %w", path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.MaxRetries, err = envInt("MAX_RETRIES", c.MaxRetries); err != nil {
		return err
	}
	if c.TimeoutSec, err = envInt("TIMEOUT", c.TimeoutSec); err != nil {
		return err
	}
	if c.Ordered, err = envBool("ORDERED", c.Ordered); err != nil {
		return err
	}
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.LogFile = envString("LOG_FILE", c.LogFile)
	c.MetricsAddr = envString("METRICS_ADDR", c.MetricsAddr)
	return nil
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries は1以上である必要があります (指定値: %d)", c.MaxRetries)
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("per_attempt_timeout_seconds は正の値である必要があります (指定値: %d)", c.TimeoutSec)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("不明なログレベルです: %q", c.LogLevel)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s%s の値が整数ではありません: %q", EnvPrefix, key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("環境変数 %s%s の値が真偽値ではありません: %q", EnvPrefix, key, v)
	}
	return b, nil
}
