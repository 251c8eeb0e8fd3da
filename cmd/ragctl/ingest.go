package main

import (
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rag-qa-go/internal/bootstrap"
)

var skipExisting bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <pattern>...",
	Short: "Ingest files matching glob patterns",
	Long: `Ingest files through the same pipeline as the upload API.
Patterns support ** and directories are expanded recursively.

Examples:
  ragctl ingest README.md
  ragctl ingest "docs/**/*.{md,txt}" reports/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip files whose name is already ingested")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	paths, err := bootstrap.ExpandPatterns(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %v", args)
	}
	fmt.Printf("Found %s files\n", boldCyan(len(paths)))

	return withApp(cmd.Context(), func(app *bootstrap.App) error {
		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)

		var failed []bootstrap.ImportResult
		ingested, skipped, chunks := 0, 0, 0
		bootstrap.ImportFiles(cmd.Context(), app.Documents, app.DocRepo, paths, skipExisting, func(r bootstrap.ImportResult) {
			switch {
			case r.Err != nil:
				failed = append(failed, r)
			case r.Skipped:
				skipped++
			default:
				ingested++
				chunks += r.Result.Chunks
			}
			_ = bar.Add(1)
		})

		fmt.Printf("%s %d documents, %d chunks", boldGreen("Ingested"), ingested, chunks)
		if skipped > 0 {
			fmt.Printf(", %s", yellow(fmt.Sprintf("%d skipped", skipped)))
		}
		fmt.Println()
		for _, r := range failed {
			fmt.Printf("  %s %s: %v\n", red("failed"), filepath.Base(r.Path), r.Err)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d files failed", len(failed), len(paths))
		}
		return nil
	})
}
