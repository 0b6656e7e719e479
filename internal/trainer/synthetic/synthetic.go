// Package synthetic is a deterministic stand-in for a deep-learning worker.
// Its validation curve rises until Plateau and stays flat afterwards, and
// its filters carry a short informative core.
package synthetic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/signalnine/motifsweep/internal/export"
	"github.com/signalnine/motifsweep/internal/trainer"
)

type Options struct {
	// Plateau is the epoch after which the validation curve stops improving.
	Plateau int
	// FailModel makes Build fail for that architecture.
	FailModel string
	// DivergeModel makes every epoch of that architecture report a NaN loss.
	DivergeModel string
	Tasks        int
	Samples      int
	NumFilters   int
	FilterLen    int
}

func (o *Options) defaults() {
	if o.Plateau <= 0 {
		o.Plateau = 3
	}
	if o.Tasks <= 0 {
		o.Tasks = 12
	}
	if o.Samples <= 0 {
		o.Samples = 200
	}
	if o.NumFilters <= 0 {
		o.NumFilters = 64
	}
	if o.FilterLen < 8 {
		o.FilterLen = 19
	}
}

var errNoModel = errors.New("no model built")

type Backend struct {
	opts Options

	build    *trainer.BuildParams
	compiled *trainer.CompileParams
	epochs   int
	seed     uint64
}

func New(opts Options) *Backend {
	opts.defaults()
	return &Backend{opts: opts}
}

func (b *Backend) Reset(ctx context.Context) error {
	b.build = nil
	b.compiled = nil
	b.epochs = 0
	return nil
}

func (b *Backend) Build(ctx context.Context, p trainer.BuildParams) error {
	if p.Model == b.opts.FailModel {
		return fmt.Errorf("unknown architecture %q", p.Model)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%s/%d", p.Model, p.Activation, p.Trial)
	if p.Scale != nil {
		fmt.Fprintf(h, "/%g", *p.Scale)
	}
	b.seed = h.Sum64()
	b.build = &p
	b.compiled = nil
	b.epochs = 0
	return nil
}

func (b *Backend) Compile(ctx context.Context, p trainer.CompileParams) error {
	if b.build == nil {
		return errNoModel
	}
	b.compiled = &p
	return nil
}

// progress climbs linearly to 1 at Plateau and stays there.
func (b *Backend) progress(epoch int) float64 {
	return math.Min(float64(epoch), float64(b.opts.Plateau)) / float64(b.opts.Plateau)
}

func (b *Backend) FitEpoch(ctx context.Context, p trainer.EpochParams) (trainer.Logs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.compiled == nil {
		return nil, errors.New("model not compiled")
	}
	b.epochs++
	x := b.progress(p.Epoch)
	loss := 0.69 - 0.3*x
	if b.build.Model == b.opts.DivergeModel {
		loss = math.NaN()
	}
	return trainer.Logs{
		"loss":      loss,
		"auroc":     0.6 + 0.35*x,
		"aupr":      0.3 + 0.4*x,
		"val_loss":  0.7 - 0.25*x,
		"val_auroc": 0.6 + 0.3*x,
		"val_aupr":  0.3 + 0.35*x,
	}, nil
}

func (b *Backend) SaveWeights(ctx context.Context, path string) error {
	if b.build == nil {
		return errNoModel
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"model":      b.build.Model,
		"activation": b.build.Activation,
		"scale":      b.build.Scale,
		"epochs":     b.epochs,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (b *Backend) Evaluate(ctx context.Context, batchSize int) (trainer.Logs, error) {
	if b.compiled == nil {
		return nil, errors.New("model not compiled")
	}
	x := b.progress(max(b.epochs-1, 0))
	return trainer.Logs{
		"loss":     0.7 - 0.25*x,
		"accuracy": 0.6 + 0.3*x,
		"auroc":    0.6 + 0.3*x,
		"aupr":     0.3 + 0.35*x,
	}, nil
}

// Predict labels samples alternately per task so every task has both
// classes, and scores positives higher on average.
func (b *Backend) Predict(ctx context.Context, batchSize int) (*trainer.Predictions, error) {
	if b.build == nil {
		return nil, errNoModel
	}
	rng := rand.New(rand.NewPCG(b.seed, 1))
	p := &trainer.Predictions{
		Labels:      make([][]float64, b.opts.Samples),
		Predictions: make([][]float64, b.opts.Samples),
	}
	for i := range p.Labels {
		p.Labels[i] = make([]float64, b.opts.Tasks)
		p.Predictions[i] = make([]float64, b.opts.Tasks)
		for t := range p.Labels[i] {
			y := float64((i + t) % 2)
			p.Labels[i][t] = y
			p.Predictions[i][t] = 0.35*y + 0.65*rng.Float64()
		}
	}
	return p, nil
}

// Filters returns NumFilters matrices whose informative core is six
// positions long and shifts with the filter index.
func (b *Backend) Filters(ctx context.Context, p trainer.FilterParams) ([]export.Filter, error) {
	if b.build == nil {
		return nil, errNoModel
	}
	filters := make([]export.Filter, b.opts.NumFilters)
	for j := range filters {
		f := make(export.Filter, b.opts.FilterLen)
		start := j % (b.opts.FilterLen - 6)
		for pos := range f {
			if pos >= start && pos < start+6 {
				var row [4]float64
				for k := range row {
					row[k] = 0.05
				}
				row[(j+pos)%4] = 0.85
				f[pos] = row
				continue
			}
			f[pos] = [4]float64{0.25, 0.25, 0.25, 0.25}
		}
		filters[j] = f
	}
	return filters, nil
}

func (b *Backend) Close(ctx context.Context) error {
	return nil
}
