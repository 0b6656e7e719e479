package runner_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/signalnine/motifsweep/internal/report"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/runner"
	"github.com/signalnine/motifsweep/internal/store"
	"github.com/signalnine/motifsweep/internal/trainer"
	"github.com/signalnine/motifsweep/internal/trainer/synthetic"
)

type countingLauncher struct {
	inner    trainer.Launcher
	launches atomic.Int32
}

func (l *countingLauncher) Launch(ctx context.Context) (trainer.Backend, error) {
	l.launches.Add(1)
	return l.inner.Launch(ctx)
}

// flaky fails the build of one configuration's trials.
type flaky struct {
	*synthetic.Backend
	failTrial int
}

func (f *flaky) Build(ctx context.Context, p trainer.BuildParams) error {
	if p.Activation == "exponential" && p.Trial == f.failTrial {
		return &trainer.WorkerError{Op: trainer.OpBuild, Message: "out of memory"}
	}
	return f.Backend.Build(ctx, p)
}

type flakyLauncher struct{}

func (flakyLauncher) Launch(ctx context.Context) (trainer.Backend, error) {
	return &flaky{Backend: synthetic.New(synthetic.Options{}), failTrial: 1}, nil
}

func TestSweepTwoActivations(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	configs := runner.Enumerate(cfg.Models, cfg.Activations, cfg.Scales, cfg.Trials)
	var out bytes.Buffer

	aggs, err := runner.Sweep(context.Background(), &runner.SweepOpts{
		Config:   cfg,
		Configs:  configs,
		RunDir:   runDir,
		Launcher: flakyLauncher{},
		Out:      &out,
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("got %d aggregates, want 2", len(aggs))
	}
	if aggs[1].Failed != 1 || aggs[1].PR[1] != 0 {
		t.Errorf("failed trial not recorded as placeholder: %+v", aggs[1])
	}

	data, err := os.ReadFile(filepath.Join(runDir, report.SummaryFile))
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "cnn-deep_relu\t") || !strings.HasPrefix(lines[2], "cnn-deep_exponential\t") {
		t.Errorf("summary:\n%s", data)
	}
	if got := strings.Count(out.String(), "model: "); got != 6 {
		t.Errorf("progress lines: got %d", got)
	}
	if !strings.Contains(out.String(), "ERROR:") {
		t.Error("expected the failed trial to be reported")
	}
	for _, base := range []string{"cnn-deep_relu", "cnn-deep_exponential"} {
		if _, err := os.Stat(report.HistoryPath(runDir, base)); err != nil {
			t.Errorf("history for %s: %v", base, err)
		}
	}

	var regen bytes.Buffer
	if err := report.Generate(runDir, "tsv", &regen); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if regen.String() != string(data) {
		t.Errorf("regenerated summary differs:\n%s\nvs\n%s", regen.String(), data)
	}
}

func TestSweepWorkerLifecycle(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	tests := []struct {
		name     string
		inner    trainer.Launcher
		models   []string
		launches int32
	}{
		// A failure reported by the worker keeps its session.
		{"worker error reuses", flakyLauncher{}, []string{"cnn-deep"}, 1},
		// Any other failure replaces the worker.
		{"local error relaunches", &synthetic.Launcher{Options: synthetic.Options{FailModel: "cnn-2"}}, []string{"cnn-deep", "cnn-2"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &countingLauncher{inner: tt.inner}
			configs := runner.Enumerate(tt.models, cfg.Activations, nil, 2)
			if _, err := runner.Sweep(context.Background(), &runner.SweepOpts{
				Config:   cfg,
				Configs:  configs,
				RunDir:   newRunDir(t),
				Launcher: l,
				Out:      &bytes.Buffer{},
			}); err != nil {
				t.Fatalf("Sweep: %v", err)
			}
			if n := l.launches.Load(); n != tt.launches {
				t.Errorf("launched %d workers, want %d", n, tt.launches)
			}
		})
	}
}

func TestSweepParallelKeepsOrder(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	configs := runner.Enumerate([]string{"cnn-deep", "cnn-2", "cnn-50"}, []string{"relu", "exponential"}, nil, 2)
	aggs, err := runner.Sweep(context.Background(), &runner.SweepOpts{
		Config:   cfg,
		Configs:  configs,
		RunDir:   runDir,
		Launcher: &synthetic.Launcher{},
		Parallel: 4,
		Out:      &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	order, _ := runner.Bases(configs)
	if len(aggs) != len(order) {
		t.Fatalf("got %d aggregates", len(aggs))
	}
	for i, a := range aggs {
		if a.Name != order[i] {
			t.Errorf("aggregate %d = %s, want %s", i, a.Name, order[i])
		}
	}
	trials, err := report.Collect(runDir)
	if err != nil || len(trials) != 12 {
		t.Errorf("trial records: %d %v", len(trials), err)
	}
}

func TestSweepStore(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	configs := runner.Enumerate(cfg.Models, cfg.Activations, nil, cfg.Trials)
	_, err = runner.Sweep(ctx, &runner.SweepOpts{
		Config:   cfg,
		Configs:  configs,
		RunDir:   runDir,
		RunID:    filepath.Base(runDir),
		Launcher: &synthetic.Launcher{},
		Store:    st,
		Out:      &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	n, err := st.TrialCount(ctx, filepath.Base(runDir))
	if err != nil || n != 6 {
		t.Errorf("trial rows: %d %v", n, err)
	}
	rows, err := st.Aggregates(ctx, filepath.Base(runDir))
	if err != nil || len(rows) != 2 {
		t.Errorf("aggregate rows: %v %v", rows, err)
	}
}

func TestSweepCancelled(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	runDir := newRunDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Sweep(ctx, &runner.SweepOpts{
		Config:   cfg,
		Configs:  runner.Enumerate(cfg.Models, cfg.Activations, nil, cfg.Trials),
		RunDir:   runDir,
		Launcher: &synthetic.Launcher{},
		Out:      &bytes.Buffer{},
	})
	if err == nil {
		t.Fatal("expected an error for a cancelled sweep")
	}
	if _, err := os.Stat(filepath.Join(result.TrialDir(runDir, "cnn-deep_relu", 0), result.TrialFile)); err == nil {
		t.Error("no trial should run after cancellation")
	}
}

func TestSweepSharedOutput(t *testing.T) {
	cfg := loadConfig(t, sweepYAML)
	configs := runner.Enumerate([]string{"cnn-deep", "cnn-2"}, []string{"relu", "exponential"}, nil, 3)
	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallel %d", parallel), func(t *testing.T) {
			var out bytes.Buffer
			if _, err := runner.Sweep(context.Background(), &runner.SweepOpts{
				Config:   cfg,
				Configs:  configs,
				RunDir:   newRunDir(t),
				Launcher: &synthetic.Launcher{},
				Parallel: parallel,
				Out:      &out,
			}); err != nil {
				t.Fatalf("Sweep: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			var models, scores, rows int
			for _, l := range lines {
				switch {
				case strings.HasPrefix(l, "model: "):
					models++
				case strings.HasPrefix(l, "  roc "):
					scores++
				case strings.HasPrefix(l, "cnn-") && strings.Count(l, "\t") == 2:
					rows++
				default:
					t.Errorf("garbled line %q", l)
				}
			}
			if models != 12 || scores != 12 || rows != 4 {
				t.Errorf("got %d model, %d score, %d summary lines", models, scores, rows)
			}
			if parallel > 1 {
				return
			}
			// Sequential runs finish each trial, files included, before the next starts.
			for i, l := range lines {
				if !strings.HasPrefix(l, "cnn-") {
					continue
				}
				base, _, _ := strings.Cut(l, "\t")
				if i < 2 || !strings.HasPrefix(lines[i-1], "  roc ") || !strings.HasPrefix(lines[i-2], "model: "+base+"_2") {
					t.Errorf("row %q not written right after its last trial", l)
				}
			}
		})
	}
}
