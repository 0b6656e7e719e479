// Package metrics scores binary multi-task predictions.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when a task has only positive or only negative labels.
var ErrSingleClass = errors.New("labels contain a single class")

// Summary holds mean and population std of per-task scores.
type Summary struct {
	Tasks        int     `json:"tasks"`
	AccuracyMean float64 `json:"accuracy_mean"`
	AccuracyStd  float64 `json:"accuracy_std"`
	ROCMean      float64 `json:"roc_mean"`
	ROCStd       float64 `json:"roc_std"`
	PRMean       float64 `json:"pr_mean"`
	PRStd        float64 `json:"pr_std"`
}

// MeanStd returns the arithmetic mean and the population standard deviation.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

func checkInputs(labels []bool, scores []float64) error {
	if len(labels) != len(scores) {
		return fmt.Errorf("%d labels but %d scores", len(labels), len(scores))
	}
	var pos int
	for _, l := range labels {
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return ErrSingleClass
	}
	return nil
}

// ROCAUC is the area under the receiver operating characteristic curve.
func ROCAUC(labels []bool, scores []float64) (float64, error) {
	if err := checkInputs(labels, scores); err != nil {
		return 0, err
	}
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	if len(fpr) < 2 {
		return 0, fmt.Errorf("degenerate roc curve")
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}

// PRAUC is the area under the precision-recall curve, computed as average
// precision: the sum over score thresholds of precision weighted by the
// recall gained at that threshold.
func PRAUC(labels []bool, scores []float64) (float64, error) {
	if err := checkInputs(labels, scores); err != nil {
		return 0, err
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var totalPos int
	for _, l := range labels {
		if l {
			totalPos++
		}
	}
	var (
		tp, seen   int
		prevRecall float64
		ap         float64
	)
	for i := 0; i < len(idx); {
		// ties share one threshold
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			if labels[idx[j]] {
				tp++
			}
			seen++
			j++
		}
		recall := float64(tp) / float64(totalPos)
		precision := float64(tp) / float64(seen)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j
	}
	return ap, nil
}

// Accuracy thresholds scores at 0.5.
func Accuracy(labels []bool, scores []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var correct int
	for i, l := range labels {
		if (scores[i] >= 0.5) == l {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// Calculate scores every task (column) of a samples x tasks label matrix
// against the matching prediction matrix. Tasks whose labels hold a single
// class are skipped.
func Calculate(labels, predictions [][]float64) (Summary, error) {
	if len(labels) == 0 {
		return Summary{}, fmt.Errorf("no samples")
	}
	if len(labels) != len(predictions) {
		return Summary{}, fmt.Errorf("%d label rows but %d prediction rows", len(labels), len(predictions))
	}
	numTasks := len(labels[0])
	var acc, roc, pr []float64
	for task := 0; task < numTasks; task++ {
		y := make([]bool, len(labels))
		s := make([]float64, len(labels))
		for i := range labels {
			if len(labels[i]) != numTasks || len(predictions[i]) != numTasks {
				return Summary{}, fmt.Errorf("row %d: expected %d tasks", i, numTasks)
			}
			y[i] = labels[i][task] > 0.5
			s[i] = predictions[i][task]
			if math.IsNaN(s[i]) {
				return Summary{}, fmt.Errorf("task %d: NaN prediction at row %d", task, i)
			}
		}
		r, err := ROCAUC(y, s)
		if errors.Is(err, ErrSingleClass) {
			continue
		}
		if err != nil {
			return Summary{}, fmt.Errorf("task %d: %w", task, err)
		}
		p, err := PRAUC(y, s)
		if err != nil {
			return Summary{}, fmt.Errorf("task %d: %w", task, err)
		}
		acc = append(acc, Accuracy(y, s))
		roc = append(roc, r)
		pr = append(pr, p)
	}
	if len(roc) == 0 {
		return Summary{}, fmt.Errorf("all %d tasks: %w", numTasks, ErrSingleClass)
	}
	sum := Summary{Tasks: len(roc)}
	sum.AccuracyMean, sum.AccuracyStd = MeanStd(acc)
	sum.ROCMean, sum.ROCStd = MeanStd(roc)
	sum.PRMean, sum.PRStd = MeanStd(pr)
	return sum, nil
}
