package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/gateway"
	"github.com/signalnine/motifsweep/internal/motif"
	"github.com/signalnine/motifsweep/internal/trainer"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config, the trainer worker and the Tomtom setup",
		Long:  "Load the config, start one trainer worker and reset it, then check that the motif groups, the Tomtom database and the secrets file are usable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			problems := preflight(ctx, cfg)
			for _, p := range problems {
				fmt.Printf("  FAIL: %v\n", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d check(s) failed", len(problems))
			}
			fmt.Println("ok")
			return nil
		},
	}
}

// preflight runs every check and returns the failures.
func preflight(ctx context.Context, cfg *config.Config) []error {
	var problems []error
	check := func(name string, err error) {
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
			return
		}
		fmt.Printf("  ok: %s\n", name)
	}

	if cfg.Secrets.EnvFile != "" {
		_, err := gateway.ParseEnvFile(cfg.Secrets.EnvFile)
		check("secrets", err)
	}
	_, err := motif.GroupsFromConfig(cfg)
	check("motif groups", err)

	if cfg.Tomtom.Database != "" {
		_, err := os.Stat(cfg.Tomtom.Database)
		check("tomtom database", err)
		if cfg.Tomtom.Image == "" {
			_, err := exec.LookPath(cfg.Tomtom.Binary)
			check("tomtom binary", err)
		}
	}
	if cfg.Dataset.Path != "" {
		_, err := os.Stat(cfg.Dataset.Path)
		check("dataset", err)
	}

	check("trainer worker", checkWorker(ctx, cfg))
	return problems
}

func checkWorker(ctx context.Context, cfg *config.Config) error {
	env, err := trainer.Env(cfg)
	if err != nil {
		return err
	}
	var gw *gateway.Gateway
	if cfg.Trainer.Backend == config.BackendDocker {
		if gw, err = gateway.Start(); err != nil {
			return err
		}
		defer gw.Stop()
	}
	launcher, err := trainer.NewLauncher(&cfg.Trainer, env, "", gw)
	if err != nil {
		return err
	}
	b, err := launcher.Launch(ctx)
	if err != nil {
		return err
	}
	if err := b.Reset(ctx); err != nil {
		b.Close(ctx)
		return err
	}
	return b.Close(ctx)
}
