package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"label-reader/api/internal/config"
	"label-reader/api/internal/store"
)

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the last stored result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context(), config.LoadWithoutLLM)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Pipeline.Last(cmd.Context())
		if errors.Is(err, store.ErrEmpty) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Nenhum resultado gerado ainda.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return nil
	},
}
