package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var inputPath string

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Offline tools for the context assembly pipeline",
	Long: `ragctl runs the ranking and fitting stages of the context pipeline on
JSON input, so budgets and weights can be tuned without a running server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "-", "input file, - for stdin")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openInput(cmd *cobra.Command) (io.ReadCloser, error) {
	if inputPath == "" || inputPath == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return f, nil
}
