package cmd

import (
	"fmt"
	"net/url"
	"strings"
)

// completeScheme は、スキームを持たない入力に https:// を補完します。
// 既にスキームがある場合は、http/https 以外であってもそのまま返します。
// 無効なスキームのURLはバッチ内で取得失敗として扱われます。
func completeScheme(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.Contains(rawURL, "://") {
		return rawURL
	}
	return "https://" + rawURL
}

// completeSchemes は各URLに completeScheme を適用したスライスを返します。
func completeSchemes(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		out = append(out, completeScheme(u))
	}
	return out
}

// ensureScheme は、スキームを補完したうえで http/https であることを検証します。
func ensureScheme(rawURL string) (string, error) {
	completed := completeScheme(rawURL)
	if completed == "" {
		return "", fmt.Errorf("URLが入力されていません")
	}

	parsedURL, err := url.Parse(completed)
	if err != nil {
		return "", fmt.Errorf("URLのパースエラー: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("無効なURLスキームです。httpまたはhttpsを指定してください: %s", rawURL)
	}
	return completed, nil
}
