package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Inspect or delete the collection",
}

var collectionCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored chunks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		n, err := a.pipeline.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", a.pipeline.Collection(), n)
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the collection and every chunk in it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := a.pipeline.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", a.pipeline.Collection())
		return nil
	},
}

func init() {
	collectionCmd.AddCommand(collectionCountCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
}
