package main

import (
	"encoding/json"
	"fmt"
	"io"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/rag/window"

	"github.com/spf13/cobra"
)

type fitOptions struct {
	budget    int
	reserve   int
	minUseful int
}

var fitOpts fitOptions

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Pack ranked passages into a token budget",
	Long:  `Reads the JSON output of "ragctl rank" and prints the fitted context window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := openInput(cmd)
		if err != nil {
			return err
		}
		defer in.Close()
		return runFit(in, cmd.OutOrStdout(), fitOpts)
	},
}

func init() {
	f := fitCmd.Flags()
	f.IntVar(&fitOpts.budget, "budget", 3000, "total token budget")
	f.IntVar(&fitOpts.reserve, "reserve", 500, "tokens held back for the answer")
	f.IntVar(&fitOpts.minUseful, "min-useful", window.DefaultMinUsefulTokens, "smallest remainder worth a truncated passage")
	rootCmd.AddCommand(fitCmd)
}

func runFit(r io.Reader, w io.Writer, opts fitOptions) error {
	var ranked []rank.CandidatePassage
	if err := json.NewDecoder(r).Decode(&ranked); err != nil {
		return fmt.Errorf("decoding passages: %w", err)
	}

	fitter := window.NewFitter(logger.NewNopLogger(), window.Options{MinUsefulTokens: opts.minUseful})
	win, err := fitter.Fit(ranked, opts.budget, opts.reserve)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(win)
}
