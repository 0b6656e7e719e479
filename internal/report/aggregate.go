package report

import (
	"fmt"
	"sort"

	"github.com/signalnine/motifsweep/internal/metrics"
	"github.com/signalnine/motifsweep/internal/result"
)

// Aggregate is one configuration's scores across its trials. Failed trials
// contribute their 0 placeholders.
type Aggregate struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Activation string    `json:"activation,omitempty"`
	Scale      *float64  `json:"scale,omitempty"`
	Trials     int       `json:"trials"`
	Failed     int       `json:"failed"`
	ROCMean    float64   `json:"roc_mean"`
	ROCStd     float64   `json:"roc_std"`
	PRMean     float64   `json:"pr_mean"`
	PRStd      float64   `json:"pr_std"`
	ROC        []float64 `json:"roc"`
	PR         []float64 `json:"pr"`
}

// Key names the configuration within its model: the activation, the scale,
// both joined with "_", or "default" when the sweep varies neither.
func (a Aggregate) Key() string {
	switch {
	case a.Activation != "" && a.Scale != nil:
		return a.Activation + "_" + result.FormatScale(*a.Scale)
	case a.Activation != "":
		return a.Activation
	case a.Scale != nil:
		return result.FormatScale(*a.Scale)
	default:
		return "default"
	}
}

// Accumulator gathers the trials of one configuration.
type Accumulator struct {
	base     string
	expected int
	trials   map[int]*result.TrialResult
}

func NewAccumulator(base string, expected int) *Accumulator {
	return &Accumulator{base: base, expected: expected, trials: make(map[int]*result.TrialResult)}
}

func (a *Accumulator) Add(tr *result.TrialResult) error {
	if tr.Base != a.base {
		return fmt.Errorf("trial %s does not belong to %s", tr.Name, a.base)
	}
	if _, dup := a.trials[tr.Trial]; dup {
		return fmt.Errorf("trial %s recorded twice", tr.Name)
	}
	a.trials[tr.Trial] = tr
	return nil
}

// Complete reports whether every expected trial has arrived.
func (a *Accumulator) Complete() bool {
	return len(a.trials) >= a.expected
}

func (a *Accumulator) ordered() []*result.TrialResult {
	out := make([]*result.TrialResult, 0, len(a.trials))
	for _, tr := range a.trials {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trial < out[j].Trial })
	return out
}

func (a *Accumulator) Summary() Aggregate {
	agg := Aggregate{Name: a.base}
	for _, tr := range a.ordered() {
		if agg.Trials == 0 {
			agg.Model, agg.Activation, agg.Scale = tr.Model, tr.Activation, tr.Scale
		}
		agg.Trials++
		if tr.Status != result.StatusCompleted {
			agg.Failed++
		}
		agg.ROC = append(agg.ROC, tr.ROC)
		agg.PR = append(agg.PR, tr.PR)
	}
	agg.ROCMean, agg.ROCStd = metrics.MeanStd(agg.ROC)
	agg.PRMean, agg.PRStd = metrics.MeanStd(agg.PR)
	return agg
}

// Histories returns the per-trial fit histories in trial order. Trials that
// failed before fitting have none.
func (a *Accumulator) Histories() []*result.History {
	var out []*result.History
	for _, tr := range a.ordered() {
		out = append(out, tr.History)
	}
	return out
}
