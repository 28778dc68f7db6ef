package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"paperrag/internal/discovery"
)

var (
	maxResults int
	topN       int
	paperFile  string
	keywords   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find related papers on arXiv",
}

var discoverSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search arXiv",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		papers, err := a.catalog().Search(ctx, strings.Join(args, " "), maxResults)
		if err != nil {
			return err
		}
		for i, p := range papers {
			printPaper(cmd.OutOrStdout(), i+1, p, -1)
		}
		return nil
	},
}

var discoverRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend papers related to a plain-text paper",
	Long: `Search arXiv with keywords taken from the head of the paper (or --keywords)
and rank the candidates by similarity of their abstracts to the paper.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if paperFile == "" {
			return fmt.Errorf("--file is required")
		}
		text, err := os.ReadFile(paperFile)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		recs, err := a.recommender().Recommend(ctx, string(text), keywords, topN, a.cfg.Discovery.CandidatePool)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No candidates found.")
			return nil
		}
		for i, r := range recs {
			printPaper(cmd.OutOrStdout(), i+1, r.Paper, r.Similarity)
		}
		return nil
	},
}

var discoverDownloadCmd = &cobra.Command{
	Use:   "download <query>",
	Short: "Download the PDFs of the top search results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		cat := a.catalog()
		papers, err := cat.Search(ctx, strings.Join(args, " "), maxResults)
		if err != nil {
			return err
		}
		for _, p := range papers {
			path, err := discovery.Download(ctx, cat, p, a.cfg.Discovery.DownloadDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", path, p.Title)
		}
		return nil
	},
}

func printPaper(w io.Writer, n int, p discovery.Paper, similarity float64) {
	fmt.Fprintf(w, "%d. %s\n", n, p.Title)
	fmt.Fprintf(w, "   %s", p.AuthorLine())
	if !p.Published.IsZero() {
		fmt.Fprintf(w, " (%s)", p.Published.Format("2006-01-02"))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   arXiv:%s  %s\n", p.ID, strings.Join(p.Categories, ", "))
	if similarity >= 0 {
		fmt.Fprintf(w, "   similarity %.4f\n", similarity)
	}
}

func init() {
	for _, c := range []*cobra.Command{discoverSearchCmd, discoverDownloadCmd} {
		c.Flags().IntVar(&maxResults, "max", 10, "maximum results")
	}
	discoverRecommendCmd.Flags().StringVarP(&paperFile, "file", "f", "", "plain-text paper to find related work for")
	discoverRecommendCmd.Flags().StringVar(&keywords, "keywords", "", "search query (default taken from the paper's first lines)")
	discoverRecommendCmd.Flags().IntVar(&topN, "top", discovery.DefaultTopN, "number of recommendations")

	discoverCmd.AddCommand(discoverSearchCmd)
	discoverCmd.AddCommand(discoverRecommendCmd)
	discoverCmd.AddCommand(discoverDownloadCmd)
}
