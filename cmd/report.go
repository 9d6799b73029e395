package cmd

import (
	"fmt"
	"io"

	"github.com/shouni/go-web-corpus/internal/pipeline"
)

const (
	orderCount     = "count"
	orderInsertion = "insertion"
)

type reportOptions struct {
	Top      int
	Order    string
	Warnings int
}

// writeReport はコーパス、集計サマリー、単語頻度表を w へ出力します。
func writeReport(w io.Writer, out *pipeline.Output, opts reportOptions) error {
	entries := out.Frequency.ByCount()
	if opts.Order == orderInsertion {
		entries = out.Frequency.Entries()
	}
	if opts.Top > 0 && len(entries) > opts.Top {
		entries = entries[:opts.Top]
	}

	var err error
	printf := func(format string, a ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, a...)
		}
	}

	printf("--- コーパス ---\n%s\n", out.Corpus)
	printf("--- 集計 ---\n")
	printf("バッチID: %s\n", out.BatchID)
	printf("完了: 成功 %d 件, 失敗 %d 件 (警告 %d 件)\n", out.Succeeded(), out.Degraded(), opts.Warnings)
	printf("総単語数: %d, 異なり語数: %d\n", out.Frequency.Total(), out.Frequency.Len())
	printf("--- 単語頻度 (%s) ---\n", opts.Order)
	for _, e := range entries {
		printf("%-20s %d\n", e.Word, e.Count)
	}
	for _, r := range out.Results {
		if r.Degraded() {
			printf("失敗: [%d] %s\n", r.Index+1, r.URL)
		}
	}
	return err
}
