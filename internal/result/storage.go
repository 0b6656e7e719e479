package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	TrialFile    = "trial.json"
	ManifestFile = "run.json"
)

func CreateRunDir(baseDir string, now time.Time) (string, error) {
	runsDir, err := filepath.Abs(filepath.Join(baseDir, "runs"))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating runs dir: %w", err)
	}
	stamp := now.UTC().Format("2006-01-02T15-04-05")
	// Runs started within the same second get a numeric suffix.
	runDir := filepath.Join(runsDir, stamp)
	for n := 1; ; n++ {
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
		runDir = filepath.Join(runsDir, fmt.Sprintf("%s-%d", stamp, n))
	}
	for _, sub := range []string{"model_params", "conv_filters", "trials"} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func TrialDir(runDir, base string, trial int) string {
	return filepath.Join(runDir, "trials", base, fmt.Sprintf("trial-%d", trial))
}

func WeightsPath(runDir, name string) string {
	return filepath.Join(runDir, "model_params", name+".weights")
}

func FilterDir(runDir string) string {
	return filepath.Join(runDir, "conv_filters")
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", filepath.Base(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// WriteTrial stores a trial result. An existing record is never replaced.
func WriteTrial(trialDir string, tr *TrialResult) error {
	path := filepath.Join(trialDir, TrialFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("trial record %s already exists", path)
	}
	if err := WriteJSON(path, tr); err != nil {
		return fmt.Errorf("writing trial: %w", err)
	}
	return nil
}

func ReadTrial(path string) (*TrialResult, error) {
	var tr TrialResult
	if err := readJSON(path, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func WriteManifest(runDir string, m *Manifest) error {
	return WriteJSON(filepath.Join(runDir, ManifestFile), m)
}

func ReadManifest(runDir string) (*Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(runDir, ManifestFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
