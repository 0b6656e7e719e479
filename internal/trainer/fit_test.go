package trainer_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/signalnine/motifsweep/internal/trainer"
)

// scripted replays a fixed monitor curve and records the learning rate of
// every epoch it was asked to run.
type scripted struct {
	trainer.Backend
	monitor string
	values  []float64
	nanLoss bool
	lrs     []float64
}

func (s *scripted) FitEpoch(ctx context.Context, p trainer.EpochParams) (trainer.Logs, error) {
	s.lrs = append(s.lrs, p.LearningRate)
	loss := 0.5
	if s.nanLoss {
		loss = math.NaN()
	}
	logs := trainer.Logs{"loss": loss}
	if s.monitor != "" {
		logs[s.monitor] = s.values[min(p.Epoch, len(s.values)-1)]
	}
	return logs, nil
}

func baseOpts() trainer.FitOpts {
	return trainer.FitOpts{
		Epochs:        10,
		BatchSize:     100,
		Shuffle:       true,
		LearningRate:  0.001,
		Monitor:       "val_auroc",
		Mode:          "max",
		Patience:      20,
		DecayPatience: 5,
		DecayFactor:   0.2,
		MinLR:         1e-7,
	}
}

func approxSlice(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			return false
		}
	}
	return true
}

func TestFitPlateauWithinPatience(t *testing.T) {
	b := &scripted{monitor: "val_auroc", values: []float64{0.6, 0.7, 0.75}}
	hist, err := trainer.Fit(context.Background(), b, baseOpts())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.Epochs != 10 || hist.StoppedEarly {
		t.Errorf("epochs=%d stopped=%v, want all 10 epochs", hist.Epochs, hist.StoppedEarly)
	}
	want := []float64{1e-3, 1e-3, 1e-3, 1e-3, 1e-3, 1e-3, 1e-3, 1e-3, 2e-4, 2e-4}
	if !approxSlice(b.lrs, want) {
		t.Errorf("lr schedule: got %v, want %v", b.lrs, want)
	}
	if !approxSlice(hist.Curves["lr"], want) {
		t.Errorf("lr curve: got %v", hist.Curves["lr"])
	}
	if got := hist.Curves["val_auroc"]; len(got) != 10 || got[9] != 0.75 {
		t.Errorf("val_auroc curve: got %v", got)
	}
}

func TestFitEarlyStop(t *testing.T) {
	b := &scripted{monitor: "val_auroc", values: []float64{0.6, 0.7, 0.75}}
	opts := baseOpts()
	opts.Patience = 3
	hist, err := trainer.Fit(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !hist.StoppedEarly || hist.StoppedEpoch != 6 || hist.Epochs != 6 {
		t.Errorf("got epochs=%d stopped=%v at %d, want stop after epoch 6", hist.Epochs, hist.StoppedEarly, hist.StoppedEpoch)
	}
}

func TestFitMinMode(t *testing.T) {
	b := &scripted{monitor: "val_loss", values: []float64{0.9, 0.8}}
	opts := baseOpts()
	opts.Monitor = "val_loss"
	opts.Mode = "min"
	opts.Patience = 2
	hist, err := trainer.Fit(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !hist.StoppedEarly || hist.Epochs != 4 {
		t.Errorf("got epochs=%d stopped=%v, want stop after 4", hist.Epochs, hist.StoppedEarly)
	}
}

func TestFitDecayNeedsMinDelta(t *testing.T) {
	b := &scripted{monitor: "val_auroc", values: []float64{0.5, 0.50002, 0.50004, 0.50006, 0.50008}}
	opts := baseOpts()
	opts.Epochs = 5
	opts.Patience = 3
	opts.DecayPatience = 2
	hist, err := trainer.Fit(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.StoppedEarly {
		t.Error("small improvements must keep early stopping away")
	}
	want := []float64{1e-3, 1e-3, 1e-3, 2e-4, 2e-4}
	if !approxSlice(b.lrs, want) {
		t.Errorf("lr schedule: got %v, want %v", b.lrs, want)
	}
}

func TestFitLearningRateFloor(t *testing.T) {
	b := &scripted{monitor: "val_auroc", values: []float64{0.5}}
	opts := baseOpts()
	opts.Epochs = 5
	opts.LearningRate = 3e-7
	opts.DecayPatience = 1
	if _, err := trainer.Fit(context.Background(), b, opts); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	want := []float64{3e-7, 3e-7, 1e-7, 1e-7, 1e-7}
	if !approxSlice(b.lrs, want) {
		t.Errorf("lr schedule: got %v, want %v", b.lrs, want)
	}
}

func TestFitMissingMonitor(t *testing.T) {
	b := &scripted{}
	opts := baseOpts()
	opts.Patience = 1
	opts.DecayPatience = 1
	hist, err := trainer.Fit(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.Epochs != 10 || hist.StoppedEarly {
		t.Errorf("epochs=%d stopped=%v, want a full run", hist.Epochs, hist.StoppedEarly)
	}
	for _, lr := range b.lrs {
		if lr != 0.001 {
			t.Fatalf("lr changed without a monitor: %v", b.lrs)
		}
	}
}

func TestFitDiverged(t *testing.T) {
	b := &scripted{monitor: "val_auroc", values: []float64{0.5}, nanLoss: true}
	hist, err := trainer.Fit(context.Background(), b, baseOpts())
	if !errors.Is(err, trainer.ErrDiverged) {
		t.Fatalf("got %v, want ErrDiverged", err)
	}
	if hist.Epochs != 0 {
		t.Errorf("diverged epoch recorded: %d", hist.Epochs)
	}
}
