package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/export"
	"github.com/signalnine/motifsweep/internal/metrics"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/trainer"
)

type TrialOpts struct {
	Config        *config.Config
	Configuration Configuration
	RunDir        string
	Clock         result.Clock
}

func FiguresPath(runDir, name string) string {
	return filepath.Join(result.FilterDir(runDir), name+".pdf")
}

func MotifsPath(runDir, name string) string {
	return filepath.Join(result.FilterDir(runDir), name+".meme")
}

func newRecord(c Configuration, now time.Time) *result.TrialResult {
	return &result.TrialResult{
		Name:       c.Name(),
		Base:       c.BaseName(),
		Model:      c.Model,
		Activation: c.Activation,
		Scale:      c.ScalePtr(),
		Trial:      c.Trial,
		StartedAt:  now,
	}
}

// RunTrial trains and evaluates one configuration on b. The returned record
// is never nil; when err is set it is marked failed and keeps whatever the
// trial produced before the failure, with 0 scores.
func RunTrial(ctx context.Context, b trainer.Backend, opts *TrialOpts) (*result.TrialResult, error) {
	cfg, c := opts.Config, opts.Configuration
	clock := opts.Clock
	if clock == nil {
		clock = result.SystemClock
	}
	name := c.Name()
	tr := newRecord(c, clock.Now())
	finish := func(err error) (*result.TrialResult, error) {
		tr.FinishedAt = clock.Now()
		tr.DurationS = int(tr.FinishedAt.Sub(tr.StartedAt).Seconds())
		if err != nil {
			tr.Status = result.StatusFailed
			tr.Error = err.Error()
			tr.ROC, tr.PR = 0, 0
			return tr, fmt.Errorf("%s: %w", name, err)
		}
		tr.Status = result.StatusCompleted
		return tr, nil
	}

	if err := b.Reset(ctx); err != nil {
		return finish(fmt.Errorf("resetting worker: %w", err))
	}
	err := b.Build(ctx, trainer.BuildParams{
		Model:      c.Model,
		Activation: c.Activation,
		Scale:      c.ScalePtr(),
		Dataset:    cfg.Dataset.Path,
		InputShape: cfg.Dataset.InputShape,
		Trial:      c.Trial,
	})
	if err != nil {
		return finish(fmt.Errorf("building model: %w", err))
	}
	if err := b.Compile(ctx, trainer.DefaultCompile(cfg.Training.LearningRate)); err != nil {
		return finish(fmt.Errorf("compiling model: %w", err))
	}

	hist, err := trainer.Fit(ctx, b, trainer.FitOptsFromConfig(&cfg.Training))
	tr.History = hist
	if err != nil {
		return finish(fmt.Errorf("fitting: %w", err))
	}

	weights := result.WeightsPath(opts.RunDir, name)
	if err := b.SaveWeights(ctx, weights); err != nil {
		return finish(fmt.Errorf("saving weights: %w", err))
	}
	tr.WeightsPath = weights

	eval, err := b.Evaluate(ctx, cfg.Training.EvalBatchSize)
	if err != nil {
		return finish(fmt.Errorf("evaluating: %w", err))
	}
	tr.Evaluation = eval

	if err := exportFilters(ctx, b, cfg, opts.RunDir, tr); err != nil {
		return finish(err)
	}

	preds, err := b.Predict(ctx, cfg.Training.EvalBatchSize)
	if err != nil {
		return finish(fmt.Errorf("predicting: %w", err))
	}
	summary, err := metrics.Calculate(preds.Labels, preds.Predictions)
	if err != nil {
		return finish(fmt.Errorf("scoring predictions: %w", err))
	}
	tr.Predictions = preds.Predictions
	tr.Metrics = summary
	tr.ROC, tr.PR = summary.ROCMean, summary.PRMean
	return finish(nil)
}

func exportFilters(ctx context.Context, b trainer.Backend, cfg *config.Config, runDir string, tr *result.TrialResult) error {
	filters, err := b.Filters(ctx, trainer.FilterParams{
		Layer:     cfg.Filters.Layer,
		Threshold: cfg.Filters.Threshold,
		Window:    cfg.Filters.Window,
		BatchSize: cfg.Training.EvalBatchSize,
	})
	if err != nil {
		return fmt.Errorf("extracting filters: %w", err)
	}
	figures := FiguresPath(runDir, tr.Name)
	if err := export.RenderPDF(figures, filters, cfg.Filters.NumCols); err != nil {
		return fmt.Errorf("rendering filters: %w", err)
	}
	tr.FiguresPath = figures

	motifs := MotifsPath(runDir, tr.Name)
	clipped := export.Clip(filters, cfg.Filters.ICThreshold, cfg.Filters.Pad)
	if err := export.WriteMEME(motifs, clipped); err != nil {
		return fmt.Errorf("writing motifs: %w", err)
	}
	tr.MotifsPath = motifs
	return nil
}
