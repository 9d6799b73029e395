package types

// PageResult は、1つのURLに対する処理結果を保持します。
// Scraperの出力、Aggregatorの入力として利用されます。
// 取得や抽出に失敗した場合でも必ず1件生成され、Text は空文字列になります。
type PageResult struct {
	Index int    // 投入順のインデックス (0始まり)
	URL   string // 処理対象のURL
	Text  string // 抽出されたテキスト片をスペースで結合したもの
	Err   error  // 空の結果に劣化した原因 (成功時は nil)
}

// Degraded は、このURLの結果が失敗により空文字列へ劣化したかどうかを返します。
func (r PageResult) Degraded() bool {
	return r.Err != nil
}

// Progress は、バッチ実行中の進捗イベントです。
type Progress struct {
	Completed int // 完了したタスク数
	Total     int // バッチ全体のタスク数
}

// Fraction は進捗を 0.0〜1.0 の割合で返します。
// Total が 0 の場合 (空のバッチ) は即時完了として 1.0 を返します。
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1.0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Done は、すべてのタスクが完了したかどうかを返します。
func (p Progress) Done() bool {
	return p.Completed >= p.Total
}
