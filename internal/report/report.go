// Package report rolls trial records up into per-configuration summaries.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/motifsweep/internal/result"
)

const (
	SummaryFile = "performance.tsv"
	ResultsFile = "performance_results.json"
	SummaryHead = "model\tave roc\tave pr"
)

// Scores are the raw per-trial values of one configuration.
type Scores struct {
	ROC []float64 `json:"roc"`
	PR  []float64 `json:"pr"`
}

// Results maps model to configuration key to the raw scores.
type Results map[string]map[string]Scores

func FormatRow(a Aggregate) string {
	return fmt.Sprintf("%s\t%.3f±%.3f\t%.3f±%.3f", a.Name, a.ROCMean, a.ROCStd, a.PRMean, a.PRStd)
}

func HistoryPath(runDir, base string) string {
	return filepath.Join(runDir, base+"_history.json")
}

// Collector takes finished trials in any order and, once a configuration's
// last trial arrives, writes its summary row, its history file and the
// updated results mapping. Rows follow the order of Expect calls.
type Collector struct {
	runDir  string
	summary *os.File

	order []string
	accs  map[string]*Accumulator
	next  int

	aggs    []Aggregate
	results Results
}

// NewCollector truncates the run's summary file and writes its header.
func NewCollector(runDir string) (*Collector, error) {
	f, err := os.Create(filepath.Join(runDir, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("creating summary: %w", err)
	}
	if _, err := fmt.Fprintln(f, SummaryHead); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing summary header: %w", err)
	}
	return &Collector{
		runDir:  runDir,
		summary: f,
		accs:    make(map[string]*Accumulator),
		results: make(Results),
	}, nil
}

// Expect registers a configuration and its trial count.
func (c *Collector) Expect(base string, trials int) {
	if _, ok := c.accs[base]; ok {
		return
	}
	c.order = append(c.order, base)
	c.accs[base] = NewAccumulator(base, trials)
}

// Add records tr and returns the aggregates it completed.
func (c *Collector) Add(tr *result.TrialResult) ([]Aggregate, error) {
	acc, ok := c.accs[tr.Base]
	if !ok {
		return nil, fmt.Errorf("unexpected configuration %s", tr.Base)
	}
	if err := acc.Add(tr); err != nil {
		return nil, err
	}
	var done []Aggregate
	for c.next < len(c.order) {
		acc := c.accs[c.order[c.next]]
		if !acc.Complete() {
			break
		}
		agg, err := c.flush(acc)
		if err != nil {
			return done, err
		}
		done = append(done, agg)
		c.next++
	}
	return done, nil
}

func (c *Collector) flush(acc *Accumulator) (Aggregate, error) {
	agg := acc.Summary()
	if _, err := fmt.Fprintln(c.summary, FormatRow(agg)); err != nil {
		return agg, fmt.Errorf("writing summary row %s: %w", agg.Name, err)
	}
	if err := c.summary.Sync(); err != nil {
		return agg, fmt.Errorf("syncing summary: %w", err)
	}
	if err := result.WriteJSON(HistoryPath(c.runDir, agg.Name), acc.Histories()); err != nil {
		return agg, err
	}
	if c.results[agg.Model] == nil {
		c.results[agg.Model] = make(map[string]Scores)
	}
	c.results[agg.Model][agg.Key()] = Scores{ROC: agg.ROC, PR: agg.PR}
	if err := result.WriteJSON(filepath.Join(c.runDir, ResultsFile), c.results); err != nil {
		return agg, err
	}
	c.aggs = append(c.aggs, agg)
	return agg, nil
}

// Aggregates returns the configurations written so far, in order.
func (c *Collector) Aggregates() []Aggregate {
	return c.aggs
}

// Close reports configurations left incomplete and closes the summary.
func (c *Collector) Close() error {
	pending := c.order[c.next:]
	err := c.summary.Close()
	if len(pending) > 0 {
		return fmt.Errorf("incomplete configurations: %s", strings.Join(pending, ", "))
	}
	return err
}

// Collect reads every trial record in runDir, ordered by configuration as
// the sweep enumerated them and then by trial.
func Collect(runDir string) ([]*result.TrialResult, error) {
	var trials []*result.TrialResult
	root := filepath.Join(runDir, "trials")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() != result.TrialFile {
			return nil
		}
		tr, err := result.ReadTrial(path)
		if err != nil {
			return err
		}
		trials = append(trials, tr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting trials: %w", err)
	}

	m, err := result.ReadManifest(runDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if m == nil {
		m = &result.Manifest{}
	}
	sort.SliceStable(trials, func(i, j int) bool {
		ri, rj := rank(m, trials[i]), rank(m, trials[j])
		if ri != rj {
			for k := range ri {
				if ri[k] != rj[k] {
					return ri[k] < rj[k]
				}
			}
		}
		if trials[i].Base != trials[j].Base {
			return trials[i].Base < trials[j].Base
		}
		return trials[i].Trial < trials[j].Trial
	})
	return trials, nil
}

func rank(m *result.Manifest, tr *result.TrialResult) [3]int {
	r := [3]int{len(m.Models), len(m.Activations), len(m.Scales)}
	for i, v := range m.Models {
		if v == tr.Model {
			r[0] = i
		}
	}
	for i, v := range m.Activations {
		if v == tr.Activation {
			r[1] = i
		}
	}
	if tr.Scale != nil {
		for i, v := range m.Scales {
			if v == *tr.Scale {
				r[2] = i
			}
		}
	}
	return r
}

func summarize(trials []*result.TrialResult) []Aggregate {
	var order []string
	accs := make(map[string]*Accumulator)
	for _, tr := range trials {
		acc, ok := accs[tr.Base]
		if !ok {
			acc = NewAccumulator(tr.Base, 0)
			accs[tr.Base] = acc
			order = append(order, tr.Base)
		}
		if err := acc.Add(tr); err != nil {
			log.Printf("warning: skipping %s: %v", tr.Name, err)
		}
	}
	aggs := make([]Aggregate, 0, len(order))
	for _, base := range order {
		aggs = append(aggs, accs[base].Summary())
	}
	return aggs
}

// Generate summarizes the trial records of runDir to w as tsv, table,
// markdown or json. The tsv form matches the run's summary file.
func Generate(runDir, format string, w io.Writer) error {
	trials, err := Collect(runDir)
	if err != nil {
		return err
	}
	aggs := summarize(trials)

	switch format {
	case "", "tsv":
		return writeTSV(aggs, w)
	case "table":
		return writeTable(aggs, w)
	case "markdown":
		return writeMarkdown(aggs, w)
	case "json":
		return writeJSON(aggs, w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Regenerate rewrites the summary, history and results files of runDir
// from its trial records.
func Regenerate(runDir string) ([]Aggregate, error) {
	trials, err := Collect(runDir)
	if err != nil {
		return nil, err
	}
	c, err := NewCollector(runDir)
	if err != nil {
		return nil, err
	}
	for _, agg := range summarize(trials) {
		c.Expect(agg.Name, agg.Trials)
	}
	for _, tr := range trials {
		if _, err := c.Add(tr); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c.Aggregates(), c.Close()
}

func writeTSV(aggs []Aggregate, w io.Writer) error {
	if _, err := fmt.Fprintln(w, SummaryHead); err != nil {
		return err
	}
	for _, a := range aggs {
		if _, err := fmt.Fprintln(w, FormatRow(a)); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(aggs []Aggregate, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTRIALS\tFAILED\tAVE ROC\tAVE PR")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	for _, a := range aggs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f±%.3f\t%.3f±%.3f\n",
			a.Name, a.Trials, a.Failed, a.ROCMean, a.ROCStd, a.PRMean, a.PRStd)
	}
	return tw.Flush()
}

func writeMarkdown(aggs []Aggregate, w io.Writer) error {
	fmt.Fprintln(w, "| Model | Trials | Failed | Ave ROC | Ave PR |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for _, a := range aggs {
		fmt.Fprintf(w, "| %s | %d | %d | %.3f±%.3f | %.3f±%.3f |\n",
			a.Name, a.Trials, a.Failed, a.ROCMean, a.ROCStd, a.PRMean, a.PRStd)
	}
	return nil
}

func writeJSON(aggs []Aggregate, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(aggs)
}
