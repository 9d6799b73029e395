package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, uint64(DefaultMaxAttempts), cfg.MaxAttempts, "MaxAttempts should match DefaultMaxAttempts constant.")
	require.Equal(t, InitialBackoffInterval, cfg.InitialInterval, "InitialInterval should match constant.")
	require.Equal(t, MaxBackoffInterval, cfg.MaxInterval, "MaxInterval should match constant.")
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("zero attempts", func(t *testing.T) {
		err := Config{MaxAttempts: 0}.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
	t.Run("negative interval", func(t *testing.T) {
		err := Config{MaxAttempts: 1, InitialInterval: -time.Second}.Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNewBackOffPolicy(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}

	bo := newBackOffPolicy(ctx, cfg)
	require.NotNil(t, bo)
	assert.Equal(t, ctx, bo.Context())
}

func TestDo(t *testing.T) {
	// テスト用の高速な設定
	testCfg := Config{MaxAttempts: 3, InitialInterval: 1 * time.Millisecond, MaxInterval: 5 * time.Millisecond}
	opName := "test_operation"

	maxAttemptsErrText := fmt.Sprintf("%sに失敗しました: 最大試行回数 (%d回) に到達。最終エラー: retryable error", opName, testCfg.MaxAttempts)
	permanentErrText := fmt.Sprintf("%sに失敗しました: リトライ対象外のエラー: permanent error", opName)

	tests := []struct {
		name             string
		ctx              context.Context
		operation        func(attempts *int) Operation
		shouldRetry      ShouldRetryFunc
		expectedError    string
		errorContains    string
		expectedAttempts int
	}{
		{
			name: "successful operation",
			ctx:  context.Background(),
			operation: func(attempts *int) Operation {
				return func(int) error { *attempts++; return nil }
			},
			shouldRetry:      func(err error) bool { return true },
			expectedAttempts: 1,
		},
		{
			name: "retryable error and success within max attempts",
			ctx:  context.Background(),
			operation: func(attempts *int) Operation {
				return func(attempt int) error {
					*attempts++
					if attempt < 3 {
						return errors.New("retryable error")
					}
					return nil
				}
			},
			shouldRetry:      func(err error) bool { return true },
			expectedAttempts: 3,
		},
		{
			name: "permanent error stops immediately",
			ctx:  context.Background(),
			operation: func(attempts *int) Operation {
				return func(int) error { *attempts++; return errors.New("permanent error") }
			},
			shouldRetry:      func(err error) bool { return false },
			expectedError:    permanentErrText,
			expectedAttempts: 1,
		},
		{
			name: "max attempts exceeded",
			ctx:  context.Background(),
			operation: func(attempts *int) Operation {
				return func(int) error { *attempts++; return errors.New("retryable error") }
			},
			shouldRetry:      func(err error) bool { return true },
			expectedError:    maxAttemptsErrText,
			expectedAttempts: 3,
		},
		{
			name: "nil shouldRetry retries everything",
			ctx:  context.Background(),
			operation: func(attempts *int) Operation {
				return func(int) error { *attempts++; return errors.New("retryable error") }
			},
			expectedError:    maxAttemptsErrText,
			expectedAttempts: 3,
		},
		{
			name: "context canceled",
			ctx:  func() context.Context { ctx, cancel := context.WithCancel(context.Background()); cancel(); return ctx }(),
			operation: func(attempts *int) Operation {
				return func(int) error { *attempts++; return errors.New("some error") }
			},
			shouldRetry:      func(err error) bool { return true },
			errorContains:    "test_operationに失敗しました: コンテキストタイムアウト/キャンセル",
			expectedAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(tt.ctx, testCfg, opName, tt.operation(&attempts), tt.shouldRetry, nil)

			switch {
			case tt.expectedError != "":
				require.Error(t, err)
				require.Equal(t, tt.expectedError, err.Error())
			case tt.errorContains != "":
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errorContains)
				assert.ErrorIs(t, err, context.Canceled)
			default:
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expectedAttempts, attempts, "試行回数が期待値と異なります")
		})
	}
}

func TestDo_NotifyEveryFailedAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 4, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	var notified []int

	err := Do(context.Background(), cfg, "notify", func(int) error {
		return errors.New("fail")
	}, nil, func(attempt int, err error) {
		notified = append(notified, attempt)
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, notified, "最後の試行を含むすべての失敗が通知されるべきです")
}

func TestDo_SingleAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 1}
	calls := 0
	err := Do(context.Background(), cfg, "single", func(int) error {
		calls++
		return errors.New("fail")
	}, nil, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_InvalidConfig(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, "invalid", func(int) error {
		calls++
		return nil
	}, nil, nil)

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, calls, "不正な設定では操作を実行してはいけません")
}
