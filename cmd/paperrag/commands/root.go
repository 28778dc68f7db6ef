package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"paperrag/internal/config"
)

var (
	cfgFile    string
	collection string
	verbose    bool
	timeout    time.Duration

	globalConfig *config.AppConfig
	configErr    error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paperrag",
	Short: "Grounded question answering over research papers",
	Long: `paperrag indexes research papers into a local vector store and answers
questions, translates and simplifies passages using only retrieved context.

Generation goes through any OpenAI-compatible chat endpoint (Ollama by
default). Configuration is read from ./config.yaml or
~/.config/paperrag/config.yaml; API keys may come from a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, then ~/.config/paperrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "collection to use (overrides vector_store.collection)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "deadline for each request")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(simplifyCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(chatCmd)
}

func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		globalConfig, configErr = config.Load(cfgFile)
	} else {
		globalConfig, _, configErr = config.LoadDefault()
	}

	level := slog.LevelInfo
	format := "text"
	if globalConfig != nil {
		_ = level.UnmarshalText([]byte(globalConfig.Log.Level))
		format = globalConfig.Log.Format
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// getConfig returns the loaded configuration with command-line overrides applied.
func getConfig() (*config.AppConfig, error) {
	if configErr != nil {
		return nil, fmt.Errorf("config: %w", configErr)
	}
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	if collection != "" {
		globalConfig.VectorStore.Collection = collection
	}
	return globalConfig, nil
}

// requestContext bounds a single command by --timeout.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
