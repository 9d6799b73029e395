package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"
)

// ----------------------------------------------------------------------
// 定数定義 (解析関連のみ)
// ----------------------------------------------------------------------
const (
	// paragraphSelector は本文抽出に使用するHTMLタグを定義します。
	paragraphSelector = "p"
)

// englishPattern は英字と空白の連続部分に一致します。数字・記号・非ASCII文字は含みません。
var englishPattern = regexp.MustCompile(`[A-Za-z\s]+`)

// Extractor は、Fetcher を使ってコンテンツ抽出プロセスを管理します。
type Extractor struct {
	fetcher Fetcher
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(fetcher Fetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("extract.NewExtractor: Fetcher cannot be nil")
	}
	return &Extractor{
		fetcher: fetcher,
	}, nil
}

// ----------------------------------------------------------------------
// メイン関数
// ----------------------------------------------------------------------

// FetchAndExtract は指定されたURLからコンテンツを取得し、段落ごとのテキスト片を文書順に返します。
// 取得・解析のエラーはそのまま呼び出し元へ返します。
func (e *Extractor) FetchAndExtract(ctx context.Context, url string) ([]string, error) {
	// 1. Fetcherから生のバイト配列を取得 (通信の責務)
	htmlBytes, err := e.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	// 2. 段落の抽出 (解析の責務)
	return Paragraphs(string(htmlBytes))
}

// Paragraphs は HTML から p 要素のテキストを文書順に収集し、FilterEnglish で整形します。
// 整形後に空になった段落は含めません。不正なマークアップでもエラーにはならず、
// パーサーが復元できた範囲で抽出します。
func Paragraphs(html string) ([]string, error) {
	if strings.TrimSpace(html) == "" {
		return []string{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}

	fragments := []string{}
	doc.Find(paragraphSelector).Each(func(i int, s *goquery.Selection) {
		if text := FilterEnglish(s.Text()); text != "" {
			fragments = append(fragments, text)
		}
	})
	return fragments, nil
}

// FilterEnglish は英字と空白の最長連続部分を抜き出して半角スペースで結合し、
// 連続する空白を1つにまとめます。
// 例: "Hello, World! 123" -> "Hello World"
func FilterEnglish(text string) string {
	runs := englishPattern.FindAllString(text, -1)
	if len(runs) == 0 {
		return ""
	}
	return textUtils.NormalizeText(strings.Join(runs, " "))
}
