package rank

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"docqa-be/pkg/apperror"
	"docqa-be/pkg/tokens"
)

const (
	DefaultIdealMinTokens = 50
	DefaultIdealMaxTokens = 400

	// Length score floor reached at lengthFloorFactor * IdealMaxTokens.
	lengthFloor       = 0.2
	lengthFloorFactor = 4

	weightTolerance = 1e-6
)

// RawResult is one nearest-neighbour hit as returned by a vector index.
type RawResult struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Content    string
	Score      float64
}

type CandidatePassage struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename"`
	Content       string  `json:"content"`
	SemanticScore float64 `json:"semantic_score"`
	LexicalScore  float64 `json:"lexical_score"`
	LengthScore   float64 `json:"length_score"`
	CombinedScore float64 `json:"combined_score"`
}

type Weights struct {
	Semantic float64
	Lexical  float64
	Length   float64
}

func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Lexical: 0.2, Length: 0.1}
}

func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Lexical < 0 || w.Length < 0 {
		return fmt.Errorf("%w: rank weights must be non-negative, got %+v", apperror.ErrValidation, w)
	}
	if sum := w.Semantic + w.Lexical + w.Length; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: rank weights must sum to 1, got %.6f", apperror.ErrValidation, sum)
	}
	return nil
}

type Config struct {
	Weights        Weights
	IdealMinTokens int
	IdealMaxTokens int
}

type Ranker struct {
	weights  Weights
	idealMin int
	idealMax int
}

func NewRanker(cfg Config) (*Ranker, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.IdealMinTokens <= 0 {
		cfg.IdealMinTokens = DefaultIdealMinTokens
	}
	if cfg.IdealMaxTokens <= 0 {
		cfg.IdealMaxTokens = DefaultIdealMaxTokens
	}
	if cfg.IdealMaxTokens < cfg.IdealMinTokens {
		return nil, fmt.Errorf("%w: ideal max tokens %d below ideal min %d", apperror.ErrValidation, cfg.IdealMaxTokens, cfg.IdealMinTokens)
	}
	return &Ranker{
		weights:  cfg.Weights,
		idealMin: cfg.IdealMinTokens,
		idealMax: cfg.IdealMaxTokens,
	}, nil
}

// Rank scores every raw hit and returns them in total order: combined score
// descending, chunk id ascending on ties. Empty input yields an empty slice.
func (r *Ranker) Rank(raw []RawResult, query string) []CandidatePassage {
	out := make([]CandidatePassage, 0, len(raw))
	terms := QueryTerms(query)

	for _, res := range raw {
		p := CandidatePassage{
			ChunkID:       res.ChunkID,
			DocumentID:    res.DocumentID,
			Filename:      res.Filename,
			Content:       res.Content,
			SemanticScore: clamp01(res.Score),
			LexicalScore:  LexicalScore(terms, res.Content),
			LengthScore:   r.LengthScore(tokens.Estimate(res.Content)),
		}
		p.CombinedScore = r.weights.Semantic*p.SemanticScore +
			r.weights.Lexical*p.LexicalScore +
			r.weights.Length*p.LengthScore
		out = append(out, p)
	}

	Sort(out)
	return out
}

// Sort orders passages by combined score descending, chunk id ascending.
func Sort(passages []CandidatePassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return Less(passages[i], passages[j])
	})
}

func Less(a, b CandidatePassage) bool {
	if a.CombinedScore != b.CombinedScore {
		return a.CombinedScore > b.CombinedScore
	}
	return a.ChunkID < b.ChunkID
}

// Accept keeps passages scoring at least threshold, capped at maxPassages
// (0 means no cap). Input order is preserved.
func Accept(passages []CandidatePassage, threshold float64, maxPassages int) []CandidatePassage {
	out := make([]CandidatePassage, 0, len(passages))
	for _, p := range passages {
		if p.CombinedScore < threshold {
			continue
		}
		if maxPassages > 0 && len(out) == maxPassages {
			break
		}
		out = append(out, p)
	}
	return out
}

// QueryTerms lowercases the query, splits on whitespace, trims surrounding
// punctuation and drops duplicates.
func QueryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,?!;:\"'()[]{}")
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// LexicalScore is the fraction of terms literally present in content.
func LexicalScore(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(terms)))
}

// LengthScore rises linearly to 1 at the ideal minimum, stays at 1 through the
// ideal maximum, then falls linearly to a 0.2 floor at four times the maximum.
func (r *Ranker) LengthScore(tokenCount int) float64 {
	switch {
	case tokenCount <= 0:
		return 0
	case tokenCount < r.idealMin:
		return float64(tokenCount) / float64(r.idealMin)
	case tokenCount <= r.idealMax:
		return 1
	}
	floorAt := lengthFloorFactor * r.idealMax
	if tokenCount >= floorAt {
		return lengthFloor
	}
	over := float64(tokenCount-r.idealMax) / float64(floorAt-r.idealMax)
	return 1 - (1-lengthFloor)*over
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
