package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"label-reader/api/internal/app"
	"label-reader/api/internal/config"
	"label-reader/api/internal/logger"
)

var (
	cfgFile string
	llmName string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "labelctl",
	Short: "Read food labels from the command line",
	Long: `labelctl runs the label pipeline locally: image preprocessing,
Tesseract OCR and LLM structuring into ingredients and nutrition facts.

Configuration comes from the same environment variables (and .env) as the
HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline steps to stderr")

	extractCmd.Flags().StringVar(&llmName, "llm", "", "model to use: gpt or gemini (default LLM_DEFAULT)")

	rootCmd.AddCommand(extractCmd, ocrCmd, lastCmd)
}

// build loads config with load and wires the pipeline. Logs are discarded
// unless -v.
func build(ctx context.Context, load func() (*config.Config, error)) (*app.App, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, err
		}
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if verbose {
		if log, err = logger.New("development"); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}
	return app.Build(ctx, cfg, log)
}
