package cmd

import (
	"testing"

	"github.com/signalnine/motifsweep/internal/config"
)

func TestSweepConfigs(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Models:      []string{"cnn-deep", "cnn-2", "cnn-50"},
			Activations: []string{"relu", "exponential"},
			Trials:      10,
			Parallel:    1,
		}
	}

	tests := []struct {
		name       string
		model      string
		activation string
		trials     int
		want       int
		wantErr    bool
	}{
		{"no filters", "", "", 0, 60, false},
		{"model filter", "cnn-2", "", 0, 20, false},
		{"activation filter", "", "relu", 0, 30, false},
		{"both filters", "cnn-50", "exponential", 0, 10, false},
		{"trial override", "cnn-deep", "relu", 3, 3, false},
		{"no match", "cnn-4", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sweepConfigs(base(), tt.model, tt.activation, tt.trials, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d configurations, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSweepConfigsParallelOverride(t *testing.T) {
	cfg := &config.Config{Models: []string{"cnn-deep"}, Trials: 1, Parallel: 1}
	if _, err := sweepConfigs(cfg, "", "", 0, 4); err != nil {
		t.Fatal(err)
	}
	if cfg.Parallel != 4 {
		t.Errorf("parallel: got %d", cfg.Parallel)
	}
}

func TestResolveRunDir(t *testing.T) {
	if _, err := resolveRunDir(t.TempDir(), "task1", nil); err == nil {
		t.Error("expected error when no run exists")
	}
	dir := t.TempDir()
	got, err := resolveRunDir("unused", "task1", []string{dir})
	if err != nil || got == "" {
		t.Errorf("got %q, %v", got, err)
	}
}
