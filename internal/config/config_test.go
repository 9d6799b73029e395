package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSearch は XDG 探索で何も見つからない状態にします。
func noSearch(t *testing.T) {
	t.Helper()
	orig := searchConfigFile
	searchConfigFile = func() (string, error) { return "", os.ErrNotExist }
	t.Cleanup(func() { searchConfigFile = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	noSearch(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultTimeoutSec, cfg.TimeoutSec)
	assert.True(t, cfg.Ordered)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Source)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	noSearch(t)
	path := writeConfig(t, "max_retries: 5\nper_attempt_timeout_seconds: 2\nordered: false\nlog_file: /tmp/corpus.log\n")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.TimeoutSec)
	assert.False(t, cfg.Ordered)
	assert.Equal(t, "/tmp/corpus.log", cfg.LogFile)
	// ファイルに無い項目は既定値のまま
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, path, cfg.Source)
}

func TestLoad_SearchedFile(t *testing.T) {
	path := writeConfig(t, "max_retries: 7\n")
	orig := searchConfigFile
	searchConfigFile = func() (string, error) { return path, nil }
	t.Cleanup(func() { searchConfigFile = orig })

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, path, cfg.Source)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	noSearch(t)
	path := writeConfig(t, "max_retries: 5\nper_attempt_timeout_seconds: 2\n")
	t.Setenv("WEB_CORPUS_MAX_RETRIES", "9")
	t.Setenv("WEB_CORPUS_LOG_LEVEL", "debug")
	t.Setenv("WEB_CORPUS_METRICS_ADDR", ":9100")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.TimeoutSec)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		noSearch(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.True(t, errors.Is(err, ErrConfigNotFound))
	})
	t.Run("broken yaml", func(t *testing.T) {
		noSearch(t)
		_, err := Load(writeConfig(t, "max_retries: [oops"))
		assert.ErrorContains(t, err, "パース")
	})
	t.Run("invalid env int", func(t *testing.T) {
		noSearch(t)
		t.Setenv("WEB_CORPUS_TIMEOUT", "ten")
		_, err := Load("")
		assert.ErrorContains(t, err, "WEB_CORPUS_TIMEOUT")
	})
	t.Run("invalid env bool", func(t *testing.T) {
		noSearch(t)
		t.Setenv("WEB_CORPUS_ORDERED", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "WEB_CORPUS_ORDERED")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"zero timeout", func(c *Config) { c.TimeoutSec = 0 }, true},
		{"negative timeout", func(c *Config) { c.TimeoutSec = -1 }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"upper case log level", func(c *Config) { c.LogLevel = "WARN" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
