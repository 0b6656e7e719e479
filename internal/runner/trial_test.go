package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/runner"
	"github.com/signalnine/motifsweep/internal/trainer/synthetic"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motifsweep.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

const sweepYAML = `
experiment: task1
models: [cnn-deep]
activations: [relu, exponential]
trials: 3
training:
  epochs: 10
trainer:
  command: [synthetic-trainer]
`

func newRunDir(t *testing.T) string {
	t.Helper()
	runDir, err := result.CreateRunDir(t.TempDir(), result.SystemClock.Now())
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	return runDir
}

func TestRunTrialPlateau(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	b := synthetic.New(synthetic.Options{Plateau: 3})
	c := runner.Configuration{Model: "cnn-deep", Activation: "relu", Trial: 0}

	tr, err := runner.RunTrial(context.Background(), b, &runner.TrialOpts{Config: cfg, Configuration: c, RunDir: runDir})
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if tr.Status != result.StatusCompleted {
		t.Errorf("status: got %s", tr.Status)
	}
	if tr.History.Epochs != 10 || tr.History.StoppedEarly {
		t.Errorf("history: %d epochs, stopped=%v", tr.History.Epochs, tr.History.StoppedEarly)
	}
	if _, err := os.Stat(result.WeightsPath(runDir, "cnn-deep_relu_0")); err != nil {
		t.Errorf("weights: %v", err)
	}
	memes, _ := filepath.Glob(filepath.Join(result.FilterDir(runDir), "*.meme"))
	pdfs, _ := filepath.Glob(filepath.Join(result.FilterDir(runDir), "*.pdf"))
	if len(memes) != 1 || len(pdfs) != 1 {
		t.Errorf("got %d meme and %d pdf files, want one each", len(memes), len(pdfs))
	}
	if tr.ROC <= 0.5 || tr.ROC > 1 || tr.PR <= 0 || tr.Metrics.Tasks != 12 {
		t.Errorf("scores: roc=%g pr=%g tasks=%d", tr.ROC, tr.PR, tr.Metrics.Tasks)
	}
}

func TestRunTrialBuildFailure(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	b := synthetic.New(synthetic.Options{FailModel: "cnn-deep"})
	c := runner.Configuration{Model: "cnn-deep", Activation: "relu", Trial: 1}

	tr, err := runner.RunTrial(context.Background(), b, &runner.TrialOpts{Config: cfg, Configuration: c, RunDir: runDir})
	if err == nil {
		t.Fatal("expected error")
	}
	if tr == nil || tr.Status != result.StatusFailed || tr.Error == "" {
		t.Fatalf("record: %+v", tr)
	}
	if tr.ROC != 0 || tr.PR != 0 {
		t.Errorf("placeholders: roc=%g pr=%g", tr.ROC, tr.PR)
	}
}
