package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-web-corpus/internal/pipeline"
	"github.com/shouni/go-web-corpus/pkg/feed"
	"github.com/shouni/go-web-corpus/pkg/input"
	"github.com/shouni/go-web-corpus/pkg/types"
)

// scraper サブコマンドのフラグ
var (
	inputURLs  string
	urlArgs    []string
	inputFile  string
	feedURL    string
	topN       int
	orderBy    string
	unordered  bool
	noProgress bool
)

// collectURLs はフラグ、ファイル、フィード、標準入力の順にURLを集めます。
// いずれのフラグも指定されていない場合のみ標準入力を読みます。
func collectURLs(ctx context.Context, stdin io.Reader) ([]string, error) {
	var urls []string

	if inputURLs != "" {
		// --urls はすべてのカンマで区切る。クエリにカンマを含むURLは --url かファイル/標準入力で渡す
		fromFlag, err := input.ParseURLList(strings.ReplaceAll(inputURLs, ",", "\n"))
		if err != nil {
			return nil, fmt.Errorf("--urls の解析エラー: %w", err)
		}
		urls = append(urls, fromFlag...)
	}

	for _, u := range urlArgs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return nil, fmt.Errorf("URLファイルを開けません: %w", err)
		}
		defer f.Close()
		fromFile, err := input.ReadURLList(f)
		if err != nil {
			return nil, fmt.Errorf("URLファイルの読み取りエラー: %w", err)
		}
		urls = append(urls, fromFile...)
	}

	if feedURL != "" {
		links, err := fetchFeedLinks(ctx, feedURL)
		if err != nil {
			return nil, err
		}
		app.logger.Info().Str("feed", feedURL).Int("links", len(links)).Msg("フィードからURLを取得しました")
		urls = append(urls, links...)
	}

	if inputURLs == "" && len(urlArgs) == 0 && inputFile == "" && feedURL == "" {
		app.logger.Info().Msg("URLが指定されていないため、標準入力からURLを読み込みます (Ctrl+DまたはEOFで終了)")
		fromStdin, err := input.ReadURLList(stdin)
		if err != nil {
			return nil, fmt.Errorf("標準入力の読み取りエラー: %w", err)
		}
		urls = append(urls, fromStdin...)
	}

	return completeSchemes(urls), nil
}

func fetchFeedLinks(ctx context.Context, rawFeedURL string) ([]string, error) {
	processed, err := ensureScheme(rawFeedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードURLの処理エラー: %w", err)
	}

	fetcher, err := pipeline.NewFetcher(app.pipelineOptions())
	if err != nil {
		return nil, err
	}
	parser, err := feed.NewParser(fetcher)
	if err != nil {
		return nil, err
	}

	links, err := parser.FetchLinks(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("フィード解析エラー: %w", err)
	}
	return links, nil
}

// progressPrinter は進捗を1行で上書き表示する ProgressFunc を返します。
func progressPrinter(w io.Writer) func(types.Progress) {
	return func(p types.Progress) {
		fmt.Fprintf(w, "\r進捗: %d/%d (%.0f%%)", p.Completed, p.Total, p.Fraction()*100)
		if p.Done() {
			fmt.Fprintln(w)
		}
	}
}

var scraperCmd = &cobra.Command{
	Use:   "scraper",
	Short: "複数のURLを並列で処理し、英語のコーパスと単語頻度を生成します",
	Long: `--urls (カンマ区切り)、--file (1行1URL)、--feed (RSS/Atom) のいずれか、
または標準入力からURLを読み込み、最大5件ずつ並列に取得します。
取得に失敗したURLは空のテキストとして扱われ、処理全体は中断されません。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if orderBy != orderCount && orderBy != orderInsertion {
			return fmt.Errorf("--order には %q または %q を指定してください: %q", orderCount, orderInsertion, orderBy)
		}

		ctx := cmd.Context()
		urls, err := collectURLs(ctx, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			app.logger.Warn().Msg("処理対象のURLがありません")
		}

		opts := app.pipelineOptions()
		if unordered {
			opts.Ordered = false
		}
		if !noProgress {
			opts.Progress = progressPrinter(cmd.ErrOrStderr())
		}

		out, err := pipeline.Run(ctx, urls, opts)
		if err != nil {
			return fmt.Errorf("並列スクレイピングの実行エラー: %w", err)
		}

		return writeReport(cmd.OutOrStdout(), out, reportOptions{
			Top:      topN,
			Order:    orderBy,
			Warnings: len(app.warnings.Events()),
		})
	},
}

func init() {
	f := scraperCmd.Flags()
	f.StringVarP(&inputURLs, "urls", "u", "", "抽出対象のカンマ区切りURLリスト (例: url1,url2,url3)。すべてのカンマで区切るため、カンマを含むURLには --url を使用してください")
	f.StringArrayVar(&urlArgs, "url", nil, "抽出対象のURL。カンマで区切らずにそのまま扱います (複数回指定可)")
	f.StringVarP(&inputFile, "file", "f", "", "1行1URLのテキストファイル")
	f.StringVar(&feedURL, "feed", "", "RSS/Atom フィードのURL。記事リンクを処理対象にします")
	f.IntVar(&topN, "top", 20, "表示する単語頻度の件数 (0 以下で全件)")
	f.StringVar(&orderBy, "order", orderCount, "単語頻度の並び順 (count: 出現回数順, insertion: 初出順)")
	f.BoolVar(&unordered, "unordered", false, "コーパスを投入順ではなく完了順で連結する")
	f.BoolVar(&noProgress, "no-progress", false, "進捗表示を行わない")
}
