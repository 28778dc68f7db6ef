package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindex bool

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Chunk, embed and store .txt and .md documents",
	Long: `Index plain-text documents into the collection. Each file is stored under
its base name; a file whose chunks are already present is skipped.

Files and glob patterns are accepted:

  paperrag index paper.txt
  paperrag index 'papers/*.md' --reindex`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := a.pipeline.IngestFiles(ctx, args, reindex)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range res.Reports {
			if r.Skipped {
				fmt.Fprintf(out, "%-40s already indexed\n", r.Source)
				continue
			}
			fmt.Fprintf(out, "%-40s %d chunks\n", r.Source, r.Chunks)
		}
		total, err := a.pipeline.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nCollection %q holds %d chunks.\n", a.pipeline.Collection(), total)
		if res.Summary != "" {
			fmt.Fprintf(out, "\nSummary:\n%s\n", res.Summary)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&reindex, "reindex", false, "drop the collection before indexing")
}
