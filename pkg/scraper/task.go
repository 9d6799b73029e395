package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shouni/go-web-corpus/pkg/diag"
	"github.com/shouni/go-web-corpus/pkg/extract"
	"github.com/shouni/go-web-corpus/pkg/httpclient"
)

// Task は1つのURLを処理する単位です。
// 戻り値のテキストは失敗時に空文字列となり、error は劣化の原因を伝えるための情報です。
type Task interface {
	Run(ctx context.Context, url string) (string, error)
}

// TaskFunc は関数を Task として扱うためのアダプターです。
type TaskFunc func(ctx context.Context, url string) (string, error)

// Run は Task インターフェースを満たします。
func (f TaskFunc) Run(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// URLTask は Fetcher と Extractor を組み合わせ、1つのURLのテキストを生成します。
// あらゆる失敗を空文字列へ変換し、バッチ全体を中断させることはありません。
type URLTask struct {
	extractor *extract.Extractor
	sink      diag.Sink
}

// NewURLTask は URLTask を初期化します。sink が nil の場合、診断イベントは破棄されます。
func NewURLTask(extractor *extract.Extractor, sink diag.Sink) (*URLTask, error) {
	if extractor == nil {
		return nil, fmt.Errorf("scraper.NewURLTask: Extractor cannot be nil")
	}
	return &URLTask{
		extractor: extractor,
		sink:      diag.OrDiscard(sink),
	}, nil
}

// Run は Task インターフェースを実装します。
func (t *URLTask) Run(ctx context.Context, url string) (text string, err error) {
	// 解析中の予期しないパニックもこのURLの中で閉じ込める
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("URL(%s)の処理中にパニックが発生しました: %v", url, r)
			text = ""
			t.sink.Report(diag.Event{
				Level:   diag.LevelError,
				URL:     url,
				Message: "処理中の予期しないエラー",
				Reason:  err,
			})
		}
	}()

	fragments, err := t.extractor.FetchAndExtract(ctx, url)
	if err != nil {
		var fetchErr *httpclient.FetchError
		if !errors.As(err, &fetchErr) {
			// 取得の失敗は試行ごとに通知済みのため、ここでは解析側の失敗のみ通知する
			t.sink.Report(diag.Event{
				Level:   diag.LevelError,
				URL:     url,
				Message: "コンテンツの抽出に失敗しました",
				Reason:  err,
			})
		}
		return "", err
	}

	return strings.Join(fragments, " "), nil
}
