package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/result"
)

// ErrDiverged is returned when the training loss stops being finite.
var ErrDiverged = errors.New("training diverged")

// FitOpts is the epoch budget plus the early-stopping and learning-rate
// plateau policies, both watching Monitor.
type FitOpts struct {
	Epochs       int
	BatchSize    int
	Shuffle      bool
	LearningRate float64

	Monitor string
	// Mode is "max" or "min".
	Mode          string
	Patience      int
	DecayPatience int
	DecayFactor   float64
	MinLR         float64
}

func FitOptsFromConfig(t *config.Training) FitOpts {
	return FitOpts{
		Epochs:        t.Epochs,
		BatchSize:     t.BatchSize,
		Shuffle:       t.Shuffle == nil || *t.Shuffle,
		LearningRate:  t.LearningRate,
		Monitor:       t.Monitor,
		Mode:          t.Mode,
		Patience:      t.Patience,
		DecayPatience: t.DecayPatience,
		DecayFactor:   t.DecayFactor,
		MinLR:         t.MinLR,
	}
}

// plateau counts epochs since the monitored value last improved by more
// than delta.
type plateau struct {
	max   bool
	delta float64
	best  float64
	wait  int
}

func newPlateau(mode string, delta float64) *plateau {
	p := &plateau{max: mode != "min", delta: delta, best: math.Inf(1)}
	if p.max {
		p.best = math.Inf(-1)
	}
	return p
}

func (p *plateau) observe(v float64) {
	improved := v > p.best+p.delta
	if !p.max {
		improved = v < p.best-p.delta
	}
	if improved {
		p.best = v
		p.wait = 0
		return
	}
	p.wait++
}

// Fit trains the compiled model in b for up to opts.Epochs epochs. Training
// stops once Monitor has not improved for Patience epochs. The learning rate
// is multiplied by DecayFactor, down to MinLR, after DecayPatience epochs
// without an improvement of at least 1e-4. Epochs whose monitor value is
// missing or NaN leave both policies untouched.
func Fit(ctx context.Context, b Backend, opts FitOpts) (*result.History, error) {
	hist := &result.History{}
	stop := newPlateau(opts.Mode, 0)
	decay := newPlateau(opts.Mode, 1e-4)
	lr := opts.LearningRate
	warned := false

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		logs, err := b.FitEpoch(ctx, EpochParams{
			Epoch:        epoch,
			BatchSize:    opts.BatchSize,
			Shuffle:      opts.Shuffle,
			LearningRate: lr,
		})
		if err != nil {
			return hist, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		if loss, ok := logs["loss"]; ok && (math.IsNaN(loss) || math.IsInf(loss, 0)) {
			return hist, fmt.Errorf("epoch %d: loss %v: %w", epoch+1, loss, ErrDiverged)
		}
		row := make(map[string]float64, len(logs)+1)
		for k, v := range logs {
			row[k] = v
		}
		row["lr"] = lr
		hist.Append(row)

		current, ok := logs[opts.Monitor]
		if !ok || math.IsNaN(current) {
			if !warned {
				log.Printf("warning: monitor %s unavailable at epoch %d, skipping early stopping and lr decay", opts.Monitor, epoch+1)
				warned = true
			}
			continue
		}

		decay.observe(current)
		if decay.wait >= opts.DecayPatience && lr > opts.MinLR {
			lr = math.Max(lr*opts.DecayFactor, opts.MinLR)
			decay.wait = 0
		}

		stop.observe(current)
		if stop.wait >= opts.Patience {
			hist.StoppedEarly = true
			hist.StoppedEpoch = epoch + 1
			break
		}
	}
	return hist, nil
}
