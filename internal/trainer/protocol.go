// Package trainer drives an external deep-learning worker through the
// per-trial lifecycle: build, compile, fit epoch by epoch, save weights,
// evaluate, predict and extract filters.
//
// Host and worker exchange newline-free JSON messages. Each request carries
// an id echoed by its response:
//
//	{"id": 7, "op": "fit_epoch", "params": {...}}
//	{"id": 7, "ok": true, "result": {"loss": 0.41, "val_auroc": 0.83}}
package trainer

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/signalnine/motifsweep/internal/export"
)

const (
	OpReset       = "reset"
	OpBuild       = "build"
	OpCompile     = "compile"
	OpFitEpoch    = "fit_epoch"
	OpSaveWeights = "save_weights"
	OpEvaluate    = "evaluate"
	OpPredict     = "predict"
	OpFilters     = "filters"
	OpClose       = "close"
)

type Request struct {
	ID     uint64          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Logs are scalar metrics keyed by name. Non-finite values travel as the
// strings "NaN", "Infinity" and "-Infinity".
type Logs map[string]float64

func (l Logs) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(l))
	for k, v := range l {
		switch {
		case math.IsNaN(v):
			m[k] = "NaN"
		case math.IsInf(v, 1):
			m[k] = "Infinity"
		case math.IsInf(v, -1):
			m[k] = "-Infinity"
		default:
			m[k] = v
		}
	}
	return json.Marshal(m)
}

func (l *Logs) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Logs, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
		case float64:
			out[k] = x
		case string:
			switch x {
			case "NaN", "nan":
				out[k] = math.NaN()
			case "Infinity", "inf":
				out[k] = math.Inf(1)
			case "-Infinity", "-inf":
				out[k] = math.Inf(-1)
			default:
				return fmt.Errorf("metric %s: unexpected value %q", k, x)
			}
		default:
			return fmt.Errorf("metric %s: unexpected %T", k, v)
		}
	}
	*l = out
	return nil
}

// BuildParams selects the architecture instantiated for one trial.
type BuildParams struct {
	Model      string   `json:"model"`
	Activation string   `json:"activation,omitempty"`
	Scale      *float64 `json:"scale,omitempty"`
	Dataset    string   `json:"dataset,omitempty"`
	InputShape int      `json:"input_shape,omitempty"`
	Trial      int      `json:"trial"`
}

type CompileParams struct {
	Optimizer    string   `json:"optimizer"`
	LearningRate float64  `json:"learning_rate"`
	Loss         string   `json:"loss"`
	Metrics      []string `json:"metrics"`
}

// DefaultCompile is Adam with binary cross-entropy, tracking accuracy and
// the ROC and PR areas.
func DefaultCompile(lr float64) CompileParams {
	return CompileParams{
		Optimizer:    "adam",
		LearningRate: lr,
		Loss:         "binary_crossentropy",
		Metrics:      []string{"accuracy", "auroc", "aupr"},
	}
}

// EpochParams runs one pass over the training split at LearningRate and
// then scores the validation split.
type EpochParams struct {
	Epoch        int     `json:"epoch"`
	BatchSize    int     `json:"batch_size"`
	Shuffle      bool    `json:"shuffle"`
	LearningRate float64 `json:"learning_rate"`
}

type SaveWeightsParams struct {
	Path string `json:"path"`
}

type BatchParams struct {
	BatchSize int `json:"batch_size"`
}

// Predictions are test-split labels and sigmoid outputs, one row per sample
// and one column per task.
type Predictions struct {
	Labels      [][]float64 `json:"labels"`
	Predictions [][]float64 `json:"predictions"`
}

// FilterParams asks for the position probability matrices of a convolutional
// layer, built from test sequences whose activation exceeds Threshold.
type FilterParams struct {
	Layer     int     `json:"layer"`
	Threshold float64 `json:"threshold"`
	Window    int     `json:"window"`
	BatchSize int     `json:"batch_size"`
}

type FiltersResult struct {
	Filters []export.Filter `json:"filters"`
}

// WorkerError is a failure reported by the worker for one request.
type WorkerError struct {
	Op      string
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %s", e.Op, e.Message)
}
