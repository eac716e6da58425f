package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"label-reader/api/internal/config"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Print the OCR text of an image without calling a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		a, err := build(cmd.Context(), config.LoadWithoutLLM)
		if err != nil {
			return err
		}
		defer a.Close()

		ex, err := a.Pipeline.OCR(cmd.Context(), img)
		if err != nil {
			return err
		}
		if ex.Fallback {
			fmt.Fprintf(cmd.ErrOrStderr(), "language pack unavailable, used engine default: %v\n", ex.Primary)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ex.Text)
		return nil
	},
}
