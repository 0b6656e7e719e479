package cmd

import (
	"fmt"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/motif"
	"github.com/signalnine/motifsweep/internal/runner"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configurations and reference motif groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			configs := runner.Enumerate(cfg.Models, cfg.Activations, cfg.Scales, cfg.Trials)
			bases, counts := runner.Bases(configs)
			fmt.Printf("Experiment: %s (%s backend)\n", cfg.Experiment, cfg.Trainer.Backend)
			fmt.Println("\nConfigurations:")
			for _, b := range bases {
				fmt.Printf("  - %s (%d trials)\n", b, counts[b])
			}
			groups, err := motif.GroupsFromConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Println("\nMotif groups:")
			for _, g := range groups {
				fmt.Printf("  - %s %v\n", g.Name, g.IDs)
			}
			return nil
		},
	}
}
