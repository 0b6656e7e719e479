package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/motif"
	"github.com/signalnine/motifsweep/internal/report"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/runner"
	"github.com/signalnine/motifsweep/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagTomtom        bool
	flagMatchParallel int
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [run-dir]",
		Short: "Score exported filters against the reference motif groups",
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
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			var st *store.Store
			if cfg.Results.DSN != "" {
				if st, err = store.Open(ctx, cfg.Results.DSN); err != nil {
					log.Printf("warning: results store unavailable: %v", err)
					st = nil
				} else {
					defer st.Close()
				}
			}
			sums, err := matchRun(ctx, cfg, runDir, flagTomtom, flagMatchParallel, st)
			if err != nil {
				return err
			}
			fmt.Println(motif.SummaryHead)
			for _, s := range sums {
				fmt.Println(motif.FormatRow(s))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagTomtom, "tomtom", false, "run Tomtom on each trial's motifs before scoring")
	cmd.Flags().IntVar(&flagMatchParallel, "parallel", 1, "max concurrent Tomtom runs")
	return cmd
}

// matchRun scores every trial of runDir and writes the per-configuration
// match summaries. Trials without a Tomtom table count as unavailable.
func matchRun(ctx context.Context, cfg *config.Config, runDir string, tomtom bool, parallel int, st *store.Store) ([]motif.Summary, error) {
	groups, err := motif.GroupsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	trials, err := report.Collect(runDir)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, fmt.Errorf("no trial records found in %s", runDir)
	}
	filterDir := result.FilterDir(runDir)

	if tomtom {
		var jobs []runner.Job
		for _, tr := range trials {
			if tr.Status != result.StatusCompleted || tr.MotifsPath == "" {
				continue
			}
			jobs = append(jobs, func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Printf("tomtom: %s\n", tr.Name)
				_, err := motif.RunTomtom(ctx, &motif.TomtomOpts{
					Binary:   cfg.Tomtom.Binary,
					Image:    cfg.Tomtom.Image,
					Args:     cfg.Tomtom.Args,
					Query:    tr.MotifsPath,
					Database: cfg.Tomtom.Database,
					OutDir:   filepath.Dir(motif.TablePath(filterDir, tr.Name)),
					Timeout:  time.Duration(cfg.Tomtom.TimeoutMinutes) * time.Minute,
				})
				if err != nil {
					log.Printf("warning: %s: %v", tr.Name, err)
				}
				return nil
			})
		}
		if errs := runner.RunPool(parallel, jobs); len(errs) > 0 {
			return nil, errs[0]
		}
	}

	var order []string
	byBase := make(map[string][]motif.Result)
	for _, tr := range trials {
		r := motif.Match(motif.TablePath(filterDir, tr.Name), groups, cfg.Filters.Size)
		if r.Status == motif.Unavailable {
			log.Printf("warning: %s: match data unavailable: %v", tr.Name, r.Err)
		}
		if _, ok := byBase[tr.Base]; !ok {
			order = append(order, tr.Base)
		}
		byBase[tr.Base] = append(byBase[tr.Base], r)
	}

	sums := make([]motif.Summary, 0, len(order))
	for _, base := range order {
		sums = append(sums, motif.Summarize(base, byBase[base]))
	}
	if err := motif.WriteSummaries(runDir, sums); err != nil {
		return nil, err
	}

	if st != nil {
		runID := cfg.Experiment + "/" + filepath.Base(runDir)
		for _, s := range sums {
			row := store.MatchRow{
				Name:              s.Name,
				Trials:            s.Trials,
				MatchAnyMean:      s.MatchAnyMean,
				MatchAnyStd:       s.MatchAnyStd,
				MatchFractionMean: s.FractionMean,
				MatchFractionStd:  s.FractionStd,
				CoverageMean:      s.CoverageMean,
			}
			if err := st.InsertMatch(ctx, runID, row); err != nil {
				log.Printf("warning: %v", err)
			}
		}
	}
	return sums, nil
}
