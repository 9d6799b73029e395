package cmd

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-web-corpus/internal/pipeline"
	"github.com/shouni/go-web-corpus/pkg/extract"
)

var rawURL string

// runExtraction は1つのURLから段落テキストを抽出します。
// 全体のタイムアウトは全試行とバックオフを含められるよう、試行回数に比例させます。
func runExtraction(ctx context.Context, target string, opts pipeline.Options) ([]string, error) {
	fetcher, err := pipeline.NewFetcher(opts)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.NewExtractor(fetcher)
	if err != nil {
		return nil, fmt.Errorf("Extractorの初期化エラー: %w", err)
	}

	overall := fetcher.Timeout()*time.Duration(fetcher.MaxAttempts()) + 10*time.Second
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	fragments, err := extractor.FetchAndExtract(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ抽出エラー (URL: %s): %w", target, err)
	}
	return fragments, nil
}

var extractCmd = &cobra.Command{
	Use:   "extract [URL]",
	Short: "1つのURLから英語の段落テキストを抽出して表示します",
	Long:  `指定されたURL (引数、--url、または標準入力) の p 要素から英字のみのテキストを抽出し、段落ごとに表示します。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := rawURL
		if target == "" && len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			app.logger.Info().Msg("URLが指定されていないため、標準入力からURLを読み込みます")
			fmt.Fprint(cmd.ErrOrStderr(), "処理するURLを入力してください: ")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("標準入力の読み取りエラー: %w", err)
				}
				return fmt.Errorf("URLが入力されていません")
			}
			target = scanner.Text()
		}

		processed, err := ensureScheme(target)
		if err != nil {
			return fmt.Errorf("URLスキームの処理エラー: %w", err)
		}
		app.logger.Debug().Str("url", processed).Msg("処理対象URL")

		fragments, err := runExtraction(cmd.Context(), processed, app.pipelineOptions())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(fragments) == 0 {
			fmt.Fprintln(w, "段落テキストは見つかりませんでした")
			return nil
		}
		fmt.Fprintln(w, "--- 抽出された段落 ---")
		for i, f := range fragments {
			fmt.Fprintf(w, "[%d] %s\n", i+1, f)
		}
		fmt.Fprintln(w, "-----------------------")
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&rawURL, "url", "u", "", "抽出対象のURL")
}
