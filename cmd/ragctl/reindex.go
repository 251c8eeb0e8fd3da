package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rag-qa-go/internal/bootstrap"
)

var reindexAll bool

var reindexCmd = &cobra.Command{
	Use:   "reindex [document-id]",
	Short: "Rebuild the vectors of one document or of all documents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reindexAll == (len(args) == 1) {
			return errors.New("specify either a document id or --all")
		}
		return withApp(cmd.Context(), func(app *bootstrap.App) error {
			if reindexAll {
				res, err := app.Admin.ReindexAll(cmd.Context(), 0)
				if err != nil {
					return err
				}
				verb := "Reindexed"
				if res.Queued {
					verb = "Queued"
				}
				fmt.Printf("%s %d documents\n", boldGreen(verb), res.Documents)
				return nil
			}

			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			if err := app.Documents.RequestReindex(cmd.Context(), uint(id), 0); err != nil {
				return err
			}
			fmt.Printf("%s document %d\n", boldGreen("Reindex requested for"), id)
			return nil
		})
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexAll, "all", false, "reindex every document")
	rootCmd.AddCommand(reindexCmd)
}
