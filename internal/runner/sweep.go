package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/report"
	"github.com/signalnine/motifsweep/internal/result"
	"github.com/signalnine/motifsweep/internal/store"
	"github.com/signalnine/motifsweep/internal/trainer"
)

type SweepOpts struct {
	Config   *config.Config
	Configs  []Configuration
	RunDir   string
	RunID    string
	Launcher trainer.Launcher
	Parallel int
	Clock    result.Clock
	// Store, when set, receives every trial and aggregate row.
	Store *store.Store
	Out   io.Writer
}

// workers hands out idle trainer backends and launches new ones on demand.
// At most one backend exists per concurrent job.
type workers struct {
	launcher trainer.Launcher
	idle     chan trainer.Backend
}

func newWorkers(l trainer.Launcher, n int) *workers {
	return &workers{launcher: l, idle: make(chan trainer.Backend, n)}
}

func (w *workers) get(ctx context.Context) (trainer.Backend, error) {
	select {
	case b := <-w.idle:
		return b, nil
	default:
		return w.launcher.Launch(ctx)
	}
}

func (w *workers) put(b trainer.Backend) {
	w.idle <- b
}

func (w *workers) discard(ctx context.Context, b trainer.Backend) {
	if err := b.Close(context.WithoutCancel(ctx)); err != nil {
		log.Printf("warning: closing worker: %v", err)
	}
}

func (w *workers) closeAll(ctx context.Context) {
	for {
		select {
		case b := <-w.idle:
			w.discard(ctx, b)
		default:
			return
		}
	}
}

// reusable reports whether a backend can run the next trial after err.
// Failures the worker reported itself leave its session intact.
func reusable(err error) bool {
	var werr *trainer.WorkerError
	return errors.As(err, &werr) || errors.Is(err, trainer.ErrDiverged)
}

// Sweep runs every configuration and returns the per-configuration
// aggregates in configuration order. A failing trial is recorded with 0
// scores and the sweep continues; failing to write results stops it.
func Sweep(ctx context.Context, opts *SweepOpts) ([]report.Aggregate, error) {
	out := &syncWriter{w: opts.Out}
	if out.w == nil {
		out.w = os.Stdout
	}
	clock := opts.Clock
	if clock == nil {
		clock = result.SystemClock
	}
	parallel := max(opts.Parallel, 1)

	collector, err := report.NewCollector(opts.RunDir)
	if err != nil {
		return nil, err
	}
	order, counts := Bases(opts.Configs)
	for _, base := range order {
		collector.Expect(base, counts[base])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := newWorkers(opts.Launcher, parallel)
	defer pool.closeAll(ctx)

	finished := make(chan finishedTrial)
	written := make(chan error, 1)
	go func() {
		err := writeResults(ctx, opts, out, collector, finished)
		if err != nil {
			cancel()
		}
		written <- err
	}()

	jobs := make([]Job, len(opts.Configs))
	for i, c := range opts.Configs {
		jobs[i] = func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tr, err := runOne(ctx, pool, opts, clock, out, c)
			done := make(chan struct{})
			finished <- finishedTrial{tr: tr, done: done}
			<-done
			return err
		}
	}
	RunPool(parallel, jobs)
	close(finished)

	if err := <-written; err != nil {
		collector.Close()
		return collector.Aggregates(), err
	}
	if err := ctx.Err(); err != nil {
		collector.Close()
		return collector.Aggregates(), err
	}
	if err := collector.Close(); err != nil {
		return collector.Aggregates(), err
	}
	return collector.Aggregates(), nil
}

func runOne(ctx context.Context, pool *workers, opts *SweepOpts, clock result.Clock, out io.Writer, c Configuration) (*result.TrialResult, error) {
	fmt.Fprintf(out, "model: %s\n", c.Name())
	b, err := pool.get(ctx)
	if err != nil {
		err = fmt.Errorf("%s: launching worker: %w", c.Name(), err)
		fmt.Fprintf(out, "  ERROR: %v\n", err)
		tr := newRecord(c, clock.Now())
		tr.FinishedAt = tr.StartedAt
		tr.Status = result.StatusFailed
		tr.Error = err.Error()
		return tr, err
	}

	tr, err := RunTrial(ctx, b, &TrialOpts{
		Config:        opts.Config,
		Configuration: c,
		RunDir:        opts.RunDir,
		Clock:         clock,
	})
	if err != nil {
		fmt.Fprintf(out, "  ERROR: %v\n", err)
		if reusable(err) {
			pool.put(b)
		} else {
			pool.discard(ctx, b)
		}
		return tr, err
	}
	pool.put(b)
	epochs := 0
	if tr.History != nil {
		epochs = tr.History.Epochs
	}
	fmt.Fprintf(out, "  roc %.3f  pr %.3f  (%d epochs, %ds)\n", tr.ROC, tr.PR, epochs, tr.DurationS)
	return tr, nil
}

// writeResults is the only writer of trial records and summary files. After
// the first error it keeps draining finished so no job blocks.
func writeResults(ctx context.Context, opts *SweepOpts, out io.Writer, c *report.Collector, finished <-chan finishedTrial) error {
	storeCtx := context.WithoutCancel(ctx)
	var firstErr error
	for f := range finished {
		if firstErr == nil {
			firstErr = writeOne(storeCtx, opts, out, c, f.tr)
		}
		close(f.done)
	}
	return firstErr
}

// finishedTrial hands a record to the writer; done is closed once it is stored.
type finishedTrial struct {
	tr   *result.TrialResult
	done chan struct{}
}

// syncWriter serializes progress lines from trial jobs and summary rows from
// the writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// writeOne stores one trial record and writes the rows of any configuration
// it completes.
func writeOne(storeCtx context.Context, opts *SweepOpts, out io.Writer, c *report.Collector, tr *result.TrialResult) error {
	if err := result.WriteTrial(result.TrialDir(opts.RunDir, tr.Base, tr.Trial), tr); err != nil {
		return err
	}
	if opts.Store != nil {
		if err := opts.Store.InsertTrial(storeCtx, opts.RunID, tr); err != nil {
			log.Printf("warning: %v", err)
		}
	}
	done, err := c.Add(tr)
	if err != nil {
		return fmt.Errorf("aggregating %s: %w", tr.Name, err)
	}
	for _, agg := range done {
		fmt.Fprintf(out, "%s\n", report.FormatRow(agg))
		if opts.Store == nil {
			continue
		}
		row := store.AggregateRow{
			Name:    agg.Name,
			Trials:  agg.Trials,
			ROCMean: agg.ROCMean,
			ROCStd:  agg.ROCStd,
			PRMean:  agg.PRMean,
			PRStd:   agg.PRStd,
		}
		if err := opts.Store.InsertAggregate(storeCtx, opts.RunID, row); err != nil {
			log.Printf("warning: %v", err)
		}
	}
	return nil
}
