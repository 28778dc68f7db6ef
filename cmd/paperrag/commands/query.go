package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"paperrag/internal/domain"
	"paperrag/internal/retriever"
)

var (
	nResults   int
	model      string
	targetLang string
	noContext  bool
	showCtx    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()
		n := nResults
		if n <= 0 {
			n = a.retriever.NResults()
		}
		res, err := a.retriever.RetrieveN(ctx, strings.Join(args, " "), n)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, retriever.FormatContext(res.Chunks))
		verdict := "relevant"
		if res.AverageSimilarity < a.cfg.Retriever.RelevanceThreshold {
			verdict = "below threshold"
		}
		fmt.Fprintf(out, "\naverage similarity %.4f (%s)\n", res.AverageSimilarity, verdict)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed papers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		o, err := a.assistant(model)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := o.Answer(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Answer)
		fmt.Fprintf(out, "\nrelevance %.4f\n", res.Relevance)
		printSources(out, res.ContextUsed)
		return nil
	},
}

var translateCmd = &cobra.Command{
	Use:   "translate <text>",
	Short: "Translate text, keeping the paper's terminology",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		o, err := a.assistant(model)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := o.Translate(ctx, strings.Join(args, " "), targetLang, !noContext)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s]\n%s\n", res.TargetLanguage, res.Translation)
		printSources(out, res.ContextUsed)
		return nil
	},
}

var simplifyCmd = &cobra.Command{
	Use:   "simplify <text>",
	Short: "Rewrite a passage in plain language",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		o, err := a.assistant(model)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := o.Simplify(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Simplified)
		return nil
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported translation languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		o, err := a.assistant(model)
		if err != nil {
			return err
		}
		for _, l := range o.Languages() {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

func printSources(w io.Writer, chunks []domain.ScoredChunk) {
	if !showCtx || len(chunks) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	fmt.Fprintln(w, retriever.FormatContext(chunks))
}

func init() {
	searchCmd.Flags().IntVarP(&nResults, "results", "n", 0, "number of chunks (default retriever.n_results)")

	for _, c := range []*cobra.Command{askCmd, translateCmd, simplifyCmd, languagesCmd} {
		c.Flags().StringVarP(&model, "model", "m", "", "chat model (default generator.model)")
	}
	for _, c := range []*cobra.Command{askCmd, translateCmd} {
		c.Flags().BoolVar(&showCtx, "show-context", false, "print the retrieved chunks")
	}
	translateCmd.Flags().StringVarP(&targetLang, "lang", "l", "Spanish", "target language")
	translateCmd.Flags().BoolVar(&noContext, "no-context", false, "translate without paper terminology")
}
