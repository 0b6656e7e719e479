package result

import (
	"strconv"
	"time"

	"github.com/signalnine/motifsweep/internal/metrics"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// FormatScale renders a sweep scale as its shortest literal: 0.001, 1, 0.5.
func FormatScale(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// History is the per-epoch record of one fit.
type History struct {
	Epochs       int                  `json:"epochs"`
	StoppedEarly bool                 `json:"stopped_early"`
	StoppedEpoch int                  `json:"stopped_epoch,omitempty"`
	Curves       map[string][]float64 `json:"curves"`
}

// Append adds one epoch of logged values to the curves.
func (h *History) Append(logs map[string]float64) {
	if h.Curves == nil {
		h.Curves = make(map[string][]float64)
	}
	for k, v := range logs {
		h.Curves[k] = append(h.Curves[k], v)
	}
	h.Epochs++
}

// TrialResult is written once per trial and never modified afterwards.
type TrialResult struct {
	Name       string   `json:"name"`
	Base       string   `json:"base"`
	Model      string   `json:"model"`
	Activation string   `json:"activation,omitempty"`
	Scale      *float64 `json:"scale,omitempty"`
	Trial      int      `json:"trial"`

	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationS  int       `json:"duration_s"`

	History     *History           `json:"history,omitempty"`
	Evaluation  map[string]float64 `json:"evaluation,omitempty"`
	Metrics     metrics.Summary    `json:"metrics"`
	Predictions [][]float64        `json:"predictions,omitempty"`

	// ROC and PR are the values aggregated across trials; failed trials
	// carry 0 placeholders.
	ROC float64 `json:"roc"`
	PR  float64 `json:"pr"`

	WeightsPath string `json:"weights_path,omitempty"`
	FiguresPath string `json:"figures_path,omitempty"`
	MotifsPath  string `json:"motifs_path,omitempty"`
}

// Manifest describes one sweep run.
type Manifest struct {
	Experiment    string    `json:"experiment"`
	ConfigPath    string    `json:"config_path"`
	StartedAt     time.Time `json:"started_at"`
	Models        []string  `json:"models"`
	Activations   []string  `json:"activations,omitempty"`
	Scales        []float64 `json:"scales,omitempty"`
	Trials        int       `json:"trials"`
	Backend       string    `json:"backend"`
	TrainerRepo   string    `json:"trainer_repo,omitempty"`
	TrainerCommit string    `json:"trainer_commit,omitempty"`
}
