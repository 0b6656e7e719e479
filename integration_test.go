//go:build integration

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/motifsweep/internal/motif"
	"github.com/signalnine/motifsweep/internal/report"
)

func buildBinary(t *testing.T, dir, pkg string) string {
	t.Helper()
	out := filepath.Join(dir, filepath.Base(pkg))
	c := exec.Command("go", "build", "-o", out, pkg)
	if b, err := c.CombinedOutput(); err != nil {
		t.Fatalf("building %s: %v: %s", pkg, err, b)
	}
	return out
}

func motifsweep(t *testing.T, bin string, args ...string) string {
	t.Helper()
	c := exec.Command(bin, args...)
	out, err := c.CombinedOutput()
	if err != nil {
		t.Fatalf("motifsweep %v: %v: %s", args, err, out)
	}
	return string(out)
}

func TestSyntheticSweepIntegration(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not in PATH")
	}
	binDir := t.TempDir()
	cli := buildBinary(t, binDir, ".")
	worker := buildBinary(t, binDir, "./adapters/synthetic-trainer")

	work := t.TempDir()
	resultsDir := filepath.Join(work, "results")
	cfgPath := filepath.Join(work, "motifsweep.yaml")
	cfg := fmt.Sprintf(`experiment: task1
models: [cnn-deep]
activations: [relu, exponential]
trials: 2
parallel: 2
training:
  epochs: 6
  patience: 3
trainer:
  backend: process
  command: [%q, "--plateau", "2"]
motifs:
  - name: srf
    ids: [MA0083.1]
results:
  dir: %q
  dsn: sqlite://%s
`, worker, resultsDir, filepath.Join(work, "results.db"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out := motifsweep(t, cli, "sweep", "--config", cfgPath)
	if !strings.Contains(out, "--- Results ---") {
		t.Errorf("sweep output missing results table:\n%s", out)
	}

	runDir, err := filepath.EvalSymlinks(filepath.Join(resultsDir, "task1", "latest"))
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runDir, report.SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != report.SummaryHead {
		t.Fatalf("summary:\n%s", data)
	}
	if !strings.HasPrefix(lines[1], "cnn-deep_relu\t") || !strings.HasPrefix(lines[2], "cnn-deep_exponential\t") {
		t.Errorf("row order:\n%s", data)
	}
	for _, name := range []string{"cnn-deep_relu_0.meme", "cnn-deep_exponential_1.pdf"} {
		if _, err := os.Stat(filepath.Join(runDir, "conv_filters", name)); err != nil {
			t.Errorf("filter export: %v", err)
		}
	}

	if got := motifsweep(t, cli, "report", "--config", cfgPath); got != string(data) {
		t.Errorf("report differs from summary file:\n%s", got)
	}

	// No Tomtom tables exist, so every trial is unavailable.
	out = motifsweep(t, cli, "match", "--config", cfgPath, runDir)
	if !strings.Contains(out, "cnn-deep_relu\t0.000±0.000\t0.000±0.000") {
		t.Errorf("match output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(runDir, motif.SummaryFile)); err != nil {
		t.Errorf("match summary: %v", err)
	}
}
