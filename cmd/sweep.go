package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/docker"
	"github.com/signalnine/motifsweep/internal/gateway"
	"github.com/signalnine/motifsweep/internal/gitops"
	"github.com/signalnine/motifsweep/internal/report"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/runner"
	"github.com/signalnine/motifsweep/internal/store"
	"github.com/signalnine/motifsweep/internal/trainer"
	"github.com/spf13/cobra"
)

var (
	flagModel             string
	flagActivation        string
	flagTrials            int
	flagParallel          int
	flagCleanupAggressive bool
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Train every configuration and summarize test performance",
		RunE:  runSweep,
	}
	cmd.Flags().StringVar(&flagModel, "model", "", "filter to a single model")
	cmd.Flags().StringVar(&flagActivation, "activation", "", "filter to a single activation")
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override trial count")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent trainer workers (default from config)")
	cmd.Flags().BoolVar(&flagCleanupAggressive, "cleanup-aggressive", false, "remove all motifsweep Docker containers after run")
	return cmd
}

// sweepConfigs applies the command-line overrides and filters to cfg.
func sweepConfigs(cfg *config.Config, model, activation string, trials, parallel int) ([]runner.Configuration, error) {
	if trials > 0 {
		cfg.Trials = trials
	}
	if parallel > 0 {
		cfg.Parallel = parallel
	}
	configs := runner.Filter(runner.Enumerate(cfg.Models, cfg.Activations, cfg.Scales, cfg.Trials), model, activation)
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configurations match model %q activation %q", model, activation)
	}
	return configs, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	configs, err := sweepConfigs(cfg, flagModel, flagActivation, flagTrials, flagParallel)
	if err != nil {
		return err
	}
	if cfg.Trainer.Backend == config.BackendProcess && cfg.Dataset.Path != "" {
		if abs, err := filepath.Abs(cfg.Dataset.Path); err == nil {
			cfg.Dataset.Path = abs
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	clock := result.NewClock(cfg.Results.NTPServer)
	runDir, err := result.CreateRunDir(experimentDir(cfg.Results.Dir, cfg.Experiment), clock.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	manifest := &result.Manifest{
		Experiment:  cfg.Experiment,
		ConfigPath:  cfgFile,
		StartedAt:   clock.Now(),
		Models:      cfg.Models,
		Activations: cfg.Activations,
		Scales:      cfg.Scales,
		Trials:      cfg.Trials,
		Backend:     cfg.Trainer.Backend,
		TrainerRepo: cfg.Trainer.Repo,
	}
	var workDir string
	if cfg.Trainer.Repo != "" {
		workDir = filepath.Join(runDir, "model_zoo")
		fmt.Printf("Checking out %s@%s...\n", cfg.Trainer.Repo, cfg.Trainer.Tag)
		if err := gitops.CloneAndCheckout(cfg.Trainer.Repo, cfg.Trainer.Tag, workDir); err != nil {
			return fmt.Errorf("cloning trainer repo: %w", err)
		}
		if commit, err := gitops.HeadCommit(workDir); err != nil {
			log.Printf("warning: %v", err)
		} else {
			manifest.TrainerCommit = commit
		}
	}
	if err := result.WriteManifest(runDir, manifest); err != nil {
		return err
	}

	env, err := trainer.Env(cfg)
	if err != nil {
		return err
	}
	var gw *gateway.Gateway
	if cfg.Trainer.Backend == config.BackendDocker {
		gw, err = gateway.Start()
		if err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
		defer gw.Stop()
	}
	launcher, err := trainer.NewLauncher(&cfg.Trainer, env, workDir, gw)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Results.DSN != "" {
		st, err = store.Open(ctx, cfg.Results.DSN)
		if err != nil {
			log.Printf("warning: results store unavailable: %v", err)
			st = nil
		} else {
			defer st.Close()
		}
	}

	_, err = runner.Sweep(ctx, &runner.SweepOpts{
		Config:   cfg,
		Configs:  configs,
		RunDir:   runDir,
		RunID:    cfg.Experiment + "/" + filepath.Base(runDir),
		Launcher: launcher,
		Parallel: cfg.Parallel,
		Clock:    clock,
		Store:    st,
		Out:      os.Stdout,
	})

	if flagCleanupAggressive {
		cleanupDocker()
	}
	if err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	return report.Generate(runDir, "table", os.Stdout)
}

func cleanupDocker() {
	fmt.Println("Cleaning up Docker artifacts...")
	if err := docker.Prune(context.Background()); err != nil {
		log.Printf("warning: %v", err)
	}
}
