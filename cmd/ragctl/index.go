package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rag-qa-go/internal/bootstrap"
	"rag-qa-go/pkg/vectorindex"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector collection",
}

var indexEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the collection, or recreate it when the embedding dimension changed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(app *bootstrap.App) error {
			res, err := app.Admin.EnsureIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Collection %s (%d dims): %s\n", boldCyan(cfg.VectorIndex.Collection), res.Dimensions, boldGreen(res.Action))
			if res.Action == vectorindex.SchemaRecreated.String() {
				fmt.Println(yellow("Existing vectors were dropped; run `ragctl reindex --all` to rebuild them."))
			}
			return nil
		})
	},
}

func init() {
	indexCmd.AddCommand(indexEnsureCmd)
	rootCmd.AddCommand(indexCmd)
}
