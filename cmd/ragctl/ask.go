package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rag-qa-go/internal/bootstrap"
)

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withApp(cmd.Context(), func(app *bootstrap.App) error {
			payload, err := app.QA.Ask(cmd.Context(), question, askTopK)
			if err != nil {
				return err
			}

			fmt.Println(boldGreen("Answer:"))
			fmt.Println(payload.Answer)
			if payload.Cached {
				fmt.Println(yellow("(cached)"))
			}
			if len(payload.Sources) == 0 {
				return nil
			}
			fmt.Println()
			fmt.Println(boldCyan("Sources:"))
			for i, s := range payload.Sources {
				fmt.Printf("  %d. %s %s\n", i+1, s.Title, yellow(s.MatchPercentage))
				fmt.Printf("     %s\n", preview(s.ChunkText, 120))
			}
			return nil
		})
	},
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (0 uses the configured default)")
	rootCmd.AddCommand(askCmd)
}

// preview 截取前 n 个字符并压成单行。
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
