package motif

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/motifsweep/internal/metrics"
	"github.com/signalnine/motifsweep/internal/result"
)

const (
	SummaryFile = "filter_results.tsv"
	ResultsFile = "filter_results.json"
	SummaryHead = "model\tmatch JASPAR\tmatch ground truth"
)

// Summary is the match statistics of one configuration across its trials.
// Unavailable trials contribute zeros.
type Summary struct {
	Name        string      `json:"name"`
	Trials      int         `json:"trials"`
	Unavailable int         `json:"unavailable"`
	MatchAny    []float64   `json:"match_any"`
	Fraction    []float64   `json:"match_fraction"`
	Coverage    []float64   `json:"coverage"`
	BestQ       [][]float64 `json:"best_q"`
	Status      []Status    `json:"status"`

	MatchAnyMean, MatchAnyStd float64
	FractionMean, FractionStd float64
	CoverageMean              float64
}

func Summarize(name string, results []Result) Summary {
	s := Summary{Name: name, Trials: len(results)}
	for _, r := range results {
		if r.Status == Unavailable {
			s.Unavailable++
		}
		s.MatchAny = append(s.MatchAny, r.MatchAny)
		s.Fraction = append(s.Fraction, r.MatchFraction)
		s.Coverage = append(s.Coverage, r.Coverage)
		s.BestQ = append(s.BestQ, r.BestQ)
		s.Status = append(s.Status, r.Status)
	}
	s.MatchAnyMean, s.MatchAnyStd = metrics.MeanStd(s.MatchAny)
	s.FractionMean, s.FractionStd = metrics.MeanStd(s.Fraction)
	s.CoverageMean, _ = metrics.MeanStd(s.Coverage)
	return s
}

func FormatRow(s Summary) string {
	return fmt.Sprintf("%s\t%.3f±%.3f\t%.3f±%.3f", s.Name, s.MatchAnyMean, s.MatchAnyStd, s.FractionMean, s.FractionStd)
}

// WriteSummaries writes the match table and the raw per-trial statistics
// into runDir.
func WriteSummaries(runDir string, sums []Summary) error {
	f, err := os.Create(filepath.Join(runDir, SummaryFile))
	if err != nil {
		return fmt.Errorf("creating match summary: %w", err)
	}
	fmt.Fprintln(f, SummaryHead)
	for _, s := range sums {
		fmt.Fprintln(f, FormatRow(s))
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing match summary: %w", err)
	}

	raw := make(map[string]Summary, len(sums))
	for _, s := range sums {
		raw[s.Name] = s
	}
	return result.WriteJSON(filepath.Join(runDir, ResultsFile), raw)
}
