// Package aggregate は、ページ単位の結果を1つのコーパスと単語頻度表にまとめます。
package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shouni/go-web-corpus/pkg/types"
)

// Separator はコーパス連結時にページ間へ挿入される区切り文字です。
const Separator = " "

// Entry は単語と出現回数の組です。
type Entry struct {
	Word  string
	Count int
}

// WordFrequency は大文字小文字を区別する単語の出現回数表です。
// 初出順を保持します。
type WordFrequency struct {
	counts map[string]int
	order  []string
	total  int
}

// NewWordFrequency は空の頻度表を生成します。
func NewWordFrequency() *WordFrequency {
	return &WordFrequency{counts: make(map[string]int)}
}

// Add は単語の出現を1回記録します。
func (f *WordFrequency) Add(word string) {
	if _, ok := f.counts[word]; !ok {
		f.order = append(f.order, word)
	}
	f.counts[word]++
	f.total++
}

// Count は単語の出現回数を返します。未出現の場合は 0 です。
func (f *WordFrequency) Count(word string) int {
	return f.counts[word]
}

// Len は異なり語数を返します。
func (f *WordFrequency) Len() int {
	return len(f.order)
}

// Total は延べ語数を返します。
func (f *WordFrequency) Total() int {
	return f.total
}

// Words は初出順の単語一覧を返します。
func (f *WordFrequency) Words() []string {
	return slices.Clone(f.order)
}

// Entries は初出順のエントリ一覧を返します。
func (f *WordFrequency) Entries() []Entry {
	entries := make([]Entry, 0, len(f.order))
	for _, w := range f.order {
		entries = append(entries, Entry{Word: w, Count: f.counts[w]})
	}
	return entries
}

// ByCount は出現回数の降順に並べたエントリ一覧を返します。同数の場合は初出順です。
func (f *WordFrequency) ByCount() []Entry {
	entries := f.Entries()
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return entries
}

// CountWords は空白で区切ったトークンを数えます。
func CountWords(corpus string) *WordFrequency {
	freq := NewWordFrequency()
	for _, w := range strings.Fields(corpus) {
		freq.Add(w)
	}
	return freq
}

// SortBySubmission は投入順 (Index) に安定ソートしたコピーを返します。
func SortBySubmission(results []types.PageResult) []types.PageResult {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b types.PageResult) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return sorted
}

// JoinCorpus は与えられた順序のまま各ページのテキストを Separator で連結します。
// 劣化したページも空文字列として連結に含まれます。
func JoinCorpus(results []types.PageResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	return strings.Join(texts, Separator)
}

// Result はバッチ1回分の集約結果です。
type Result struct {
	Corpus    string
	Frequency *WordFrequency
}

// Aggregate は結果一覧からコーパスと頻度表を生成します。
// 同じ入力に対して常に同じ結果を返します。
func Aggregate(results []types.PageResult) Result {
	corpus := JoinCorpus(results)
	return Result{
		Corpus:    corpus,
		Frequency: CountWords(corpus),
	}
}
