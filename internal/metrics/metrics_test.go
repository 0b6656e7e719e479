package metrics_test

import (
	"errors"
	"math"
	"testing"

	"github.com/signalnine/motifsweep/internal/metrics"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMeanStd(t *testing.T) {
	tests := []struct {
		x    []float64
		mean float64
		std  float64
	}{
		{[]float64{1, 2, 3, 4}, 2.5, math.Sqrt(1.25)},
		{[]float64{0.9, 0.9, 0.9}, 0.9, 0},
		{[]float64{0, 0.8}, 0.4, 0.4},
		{nil, 0, 0},
	}
	for _, tt := range tests {
		mean, std := metrics.MeanStd(tt.x)
		if !approx(mean, tt.mean) || !approx(std, tt.std) {
			t.Errorf("MeanStd(%v) = %g, %g; want %g, %g", tt.x, mean, std, tt.mean, tt.std)
		}
	}
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels []bool
		scores []float64
		want   float64
	}{
		{"perfect", []bool{false, false, true, true}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []bool{true, true, false, false}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"mixed", []bool{false, false, true, true}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := metrics.ROCAUC(tt.labels, tt.scores)
			if err != nil {
				t.Fatalf("ROCAUC: %v", err)
			}
			if !approx(got, tt.want) {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}
}

func TestPRAUC(t *testing.T) {
	got, err := metrics.PRAUC([]bool{false, false, true, true}, []float64{0.1, 0.4, 0.35, 0.8})
	if err != nil {
		t.Fatalf("PRAUC: %v", err)
	}
	if !approx(got, 5.0/6.0) {
		t.Errorf("got %g, want %g", got, 5.0/6.0)
	}

	got, err = metrics.PRAUC([]bool{false, true}, []float64{0.2, 0.9})
	if err != nil {
		t.Fatalf("PRAUC: %v", err)
	}
	if !approx(got, 1) {
		t.Errorf("perfect ranking: got %g, want 1", got)
	}
}

func TestSingleClass(t *testing.T) {
	_, err := metrics.ROCAUC([]bool{true, true}, []float64{0.3, 0.4})
	if !errors.Is(err, metrics.ErrSingleClass) {
		t.Errorf("expected ErrSingleClass, got %v", err)
	}
}

func TestCalculate(t *testing.T) {
	labels := [][]float64{
		{0, 1, 1},
		{0, 0, 1},
		{1, 1, 1},
		{1, 0, 1},
	}
	predictions := [][]float64{
		{0.1, 0.9, 0.5},
		{0.2, 0.1, 0.5},
		{0.8, 0.7, 0.5},
		{0.9, 0.3, 0.5},
	}
	sum, err := metrics.Calculate(labels, predictions)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// third task is all positive and is skipped
	if sum.Tasks != 2 {
		t.Errorf("tasks: got %d, want 2", sum.Tasks)
	}
	if !approx(sum.ROCMean, 1) || !approx(sum.ROCStd, 0) {
		t.Errorf("roc: got %g±%g", sum.ROCMean, sum.ROCStd)
	}
	if !approx(sum.PRMean, 1) {
		t.Errorf("pr: got %g", sum.PRMean)
	}
	if !approx(sum.AccuracyMean, 1) {
		t.Errorf("accuracy: got %g", sum.AccuracyMean)
	}
}

func TestCalculateErrors(t *testing.T) {
	if _, err := metrics.Calculate(nil, nil); err == nil {
		t.Error("expected error for empty input")
	}
	_, err := metrics.Calculate([][]float64{{1}, {1}}, [][]float64{{0.2}, {0.3}})
	if !errors.Is(err, metrics.ErrSingleClass) {
		t.Errorf("expected ErrSingleClass, got %v", err)
	}
	_, err = metrics.Calculate([][]float64{{1}, {0}}, [][]float64{{math.NaN()}, {0.3}})
	if err == nil {
		t.Error("expected error for NaN prediction")
	}
}
