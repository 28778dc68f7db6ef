package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"paperrag/internal/tui"
)

var chatLang string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session over the indexed papers",
	Long: `Open a terminal chat. Tab cycles between ask, translate and simplify.
"/model <name>" switches the chat model and "/lang <language>" the
translation target.`,
	Args: cobra.NoArgs,
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
		n, err := a.pipeline.Count(cmd.Context())
		if err != nil {
			return err
		}
		current := model
		if current == "" {
			current = a.cfg.Generator.Model
		}
		m := tui.New(o, tui.Options{
			Model:    current,
			Language: chatLang,
			Summary:  fmt.Sprintf("%d chunks in %s", n, a.pipeline.Collection()),
			Timeout:  timeout,
			Switch: func(name string) (tui.Assistant, error) {
				o, err := a.assistant(name)
				if err != nil {
					return nil, err
				}
				return o, nil
			},
		})
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	chatCmd.Flags().StringVarP(&model, "model", "m", "", "chat model (default generator.model)")
	chatCmd.Flags().StringVarP(&chatLang, "lang", "l", "Spanish", "translation target")
}
