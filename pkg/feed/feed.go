// Package feed は RSS/Atom フィードの記事リンクをバッチの入力URLとして取り出します。
package feed

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/shouni/go-web-corpus/pkg/extract"
)

// Parser はフィードを取得してパースします。
type Parser struct {
	client extract.Fetcher
}

// NewParser は Parser を初期化します。client には試行ごとのタイムアウトとリトライを備えた
// *httpclient.Client を渡すことを想定しています。
func NewParser(client extract.Fetcher) (*Parser, error) {
	if client == nil {
		return nil, fmt.Errorf("feed.NewParser: Fetcher cannot be nil")
	}
	return &Parser{client: client}, nil
}

// FetchAndParse は指定されたURLからフィードを取得し、パースします。
func (p *Parser) FetchAndParse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := p.client.FetchBytes(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得失敗 (URL: %s): %w", feedURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパース失敗 (URL: %s): %w", feedURL, err)
	}
	return feed, nil
}

// FetchLinks はフィード内の記事リンクを掲載順に返します。
func (p *Parser) FetchLinks(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := p.FetchAndParse(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return GetAllLinks(NewFeedAdapter(feed)), nil
}
