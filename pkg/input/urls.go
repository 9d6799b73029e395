// Package input は、利用者が入力したURL一覧のテキストを解釈します。
package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseURLList は複数行のテキストから、前後の空白を除いたURLを入力順に返します。
// 空行は無視されます。URLとしての妥当性はここでは検査しません。
// 1行が上限を超えるなど読み込みに失敗した場合は、それまでのURLとエラーを返します。
func ParseURLList(text string) ([]string, error) {
	return ReadURLList(strings.NewReader(text))
}

// MaxLineSize は1行あたりの最大バイト数です。
const MaxLineSize = 1024 * 1024

// ReadURLList は r から1行1URLで読み込みます。
func ReadURLList(r io.Reader) ([]string, error) {
	urls := []string{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return urls, fmt.Errorf("URLリストの読み込みに失敗しました (%d件目の後): %w", len(urls), err)
	}
	return urls, nil
}
