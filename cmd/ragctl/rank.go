package main

import (
	"encoding/json"
	"fmt"
	"io"

	"docqa-be/pkg/rag/rank"

	"github.com/spf13/cobra"
)

type rawHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

type rankOptions struct {
	query       string
	weights     rank.Weights
	idealMin    int
	idealMax    int
	threshold   float64
	maxPassages int
}

var rankOpts rankOptions

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Score raw vector hits and print the accepted passages",
	Long: `Reads a JSON array of hits ({chunk_id, document_id, filename, content, score})
and prints the passages that pass the threshold, best first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := openInput(cmd)
		if err != nil {
			return err
		}
		defer in.Close()
		return runRank(in, cmd.OutOrStdout(), rankOpts)
	},
}

func init() {
	def := rank.DefaultWeights()
	f := rankCmd.Flags()
	f.StringVarP(&rankOpts.query, "query", "q", "", "query the hits were retrieved for")
	f.Float64Var(&rankOpts.weights.Semantic, "w-semantic", def.Semantic, "semantic weight")
	f.Float64Var(&rankOpts.weights.Lexical, "w-lexical", def.Lexical, "lexical weight")
	f.Float64Var(&rankOpts.weights.Length, "w-length", def.Length, "length weight")
	f.IntVar(&rankOpts.idealMin, "ideal-min", rank.DefaultIdealMinTokens, "lower bound of the ideal passage length in tokens")
	f.IntVar(&rankOpts.idealMax, "ideal-max", rank.DefaultIdealMaxTokens, "upper bound of the ideal passage length in tokens")
	f.Float64Var(&rankOpts.threshold, "threshold", 0.35, "minimum combined score")
	f.IntVar(&rankOpts.maxPassages, "max", 10, "maximum passages to keep, 0 for no limit")
	_ = rankCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(rankCmd)
}

func runRank(r io.Reader, w io.Writer, opts rankOptions) error {
	var hits []rawHit
	if err := json.NewDecoder(r).Decode(&hits); err != nil {
		return fmt.Errorf("decoding hits: %w", err)
	}

	ranker, err := rank.NewRanker(rank.Config{
		Weights:        opts.weights,
		IdealMinTokens: opts.idealMin,
		IdealMaxTokens: opts.idealMax,
	})
	if err != nil {
		return err
	}

	raw := make([]rank.RawResult, 0, len(hits))
	for _, h := range hits {
		raw = append(raw, rank.RawResult{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			Content:    h.Content,
			Score:      h.Score,
		})
	}
	accepted := rank.Accept(ranker.Rank(raw, opts.query), opts.threshold, opts.maxPassages)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(accepted)
}
