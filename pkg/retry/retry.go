package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts は、初回を含む最大試行回数のデフォルト値です。
	DefaultMaxAttempts = 3

	// バックオフのカスタム設定
	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second
)

// ErrInvalidConfig は、リトライ設定が契約を満たしていないことを示します。
var ErrInvalidConfig = errors.New("無効なリトライ設定")

// Operation はリトライ可能な処理を表す関数です。attempt は1始まりの試行番号です。
type Operation func(attempt int) error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// NotifyFunc は、各試行が失敗するたびに呼び出されます。最後の試行の失敗も含みます。
type NotifyFunc func(attempt int, err error)

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxAttempts     uint64 // 初回を含む試行回数
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
	}
}

// Validate は設定値を検証します。
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: 最大試行回数は1以上である必要があります (指定値: %d)", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.InitialInterval < 0 || c.MaxInterval < 0 {
		return fmt.Errorf("%w: バックオフ間隔に負の値は指定できません", ErrInvalidConfig)
	}
	return nil
}

// newBackOffPolicy は、試行回数の上限とコンテキストを適用したバックオフを生成します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	// 経過時間による打ち切りは行わず、試行回数のみで終了させる
	b.MaxElapsedTime = 0

	// WithMaxRetries は初回の後に許可するリトライ数を受け取る
	bo := backoff.WithMaxRetries(b, cfg.MaxAttempts-1)
	return backoff.WithContext(bo, ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// shouldRetryFn が false を返したエラーは即座に終了し、それ以外は cfg.MaxAttempts 回まで試行します。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc, notify NotifyFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	bo := newBackOffPolicy(ctx, cfg)

	var (
		lastErr   error
		attempt   int
		permanent bool
	)

	retryableOp := func() error {
		attempt++
		err := op(attempt)
		if err == nil {
			return nil
		}

		lastErr = err
		if notify != nil {
			notify(attempt, err)
		}

		if shouldRetryFn != nil && !shouldRetryFn(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(retryableOp, bo); err == nil {
		return nil
	}

	// 試行ごとのタイムアウトと区別するため、親コンテキストの状態で判定する
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル (%d回試行): %w", operationName, attempt, errors.Join(ctxErr, lastErr))
	}

	if permanent {
		return fmt.Errorf("%sに失敗しました: リトライ対象外のエラー: %w", operationName, lastErr)
	}

	return fmt.Errorf("%sに失敗しました: 最大試行回数 (%d回) に到達。最終エラー: %w", operationName, attempt, lastErr)
}
