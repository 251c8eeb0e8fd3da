package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rag-qa-go/internal/bootstrap"
	"rag-qa-go/internal/config"
	"rag-qa-go/pkg/log"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config

	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Ingest documents and ask questions against the RAG index",
	Long: `ragctl talks to the same MySQL, Redis and vector index as the HTTP server.

Example usage:
  ragctl index ensure                 # Create or migrate the vector collection
  ragctl ingest "docs/**/*.md"        # Ingest matching files
  ragctl ask "how does auth work?"    # Ask a question
  ragctl reindex --all                # Rebuild every document's vectors`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		log.Init(level, "console", "")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./configs/config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs")
}

// withApp 组装依赖后执行 fn，结束时释放全部连接。
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
