package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"label-reader/api/internal/config"
	"label-reader/api/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Run the full pipeline on an image and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		a, err := build(cmd.Context(), config.Load)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.Pipeline.Run(cmd.Context(), img, llmName)
		if err != nil {
			return err
		}
		doc, err := pipeline.MarshalDocument(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return nil
	},
}
