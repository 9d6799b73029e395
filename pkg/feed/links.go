package feed

import (
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// LinkSource は、バッチへ投入するURLの一覧を提供できる任意の型を表します。
type LinkSource interface {
	GetLinks() []string
}

// FeedAdapter は gofeed.Feed を LinkSource に適合させるアダプターです。
type FeedAdapter struct {
	*gofeed.Feed
}

// NewFeedAdapter は gofeed.Feed から新しいアダプターを作成します。
func NewFeedAdapter(feed *gofeed.Feed) *FeedAdapter {
	return &FeedAdapter{Feed: feed}
}

// GetLinks は各アイテムのリンクを返します。空のリンクは除外し、
// 相対リンクはフィード自身のリンクを基準に絶対URLへ解決します。
func (a *FeedAdapter) GetLinks() []string {
	if a.Feed == nil || len(a.Items) == 0 {
		return []string{}
	}

	base, _ := url.Parse(a.Link)

	urls := make([]string, 0, len(a.Items))
	for _, item := range a.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		urls = append(urls, resolve(base, link))
	}
	return urls
}

func resolve(base *url.URL, link string) string {
	if base == nil || !base.IsAbs() {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() {
		return link
	}
	return base.ResolveReference(ref).String()
}

// GetAllLinks は LinkSource からリンクを取り出します。source が nil の場合は空のスライスを返します。
func GetAllLinks(source LinkSource) []string {
	if source == nil {
		return []string{}
	}
	return source.GetLinks()
}
