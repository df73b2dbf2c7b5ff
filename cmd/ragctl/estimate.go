package main

import (
	"fmt"
	"io"

	"docqa-be/pkg/tokens"

	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Print the token estimate for a text",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := openInput(cmd)
		if err != nil {
			return err
		}
		defer in.Close()
		text, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tokens.Estimate(string(text)))
		return err
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
