package cmd

import (
	"fmt"
	"os"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/report"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagWrite  bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Results.Dir, cfg.Experiment, args)
			if err != nil {
				return err
			}
			if flagWrite {
				aggs, err := report.Regenerate(runDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "rewrote %s (%d configurations)\n", report.SummaryFile, len(aggs))
			}
			return report.Generate(runDir, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "tsv", "output format (tsv, table, markdown, json)")
	cmd.Flags().BoolVar(&flagWrite, "write", false, "rewrite the summary files from the trial records")
	return cmd
}
