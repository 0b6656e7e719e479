package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "motifsweep",
		Short: "Sweep CNN training configurations and score their first-layer filters against known motifs",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "motifsweep.yaml", "config file path")
	root.AddCommand(newSweepCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newMatchCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// experimentDir holds every run of the configured experiment.
func experimentDir(resultsDir, experiment string) string {
	return filepath.Join(resultsDir, experiment)
}

// resolveRunDir returns the run named by args, or the experiment's latest run.
func resolveRunDir(resultsDir, experiment string, args []string) (string, error) {
	runDir := filepath.Join(experimentDir(resultsDir, experiment), "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}
