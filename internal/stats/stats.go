// Package stats contains evaluation metrics, score normalization and text reports.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/oddball/internal/model"
)

// Accuracy returns the share of exact label matches.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	var hits int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// WeightedF1 averages per-label F1 weighted by each label's support in yTrue.
// Labels seen only in yPred count with zero weight. Undefined ratios are 0.
func WeightedF1(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	labels := map[int]struct{}{}
	for i := range yTrue {
		labels[yTrue[i]] = struct{}{}
		labels[yPred[i]] = struct{}{}
	}
	keys := make([]int, 0, len(labels))
	for l := range labels {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	var total float64
	for _, l := range keys {
		var tp, fp, fn float64
		for i := range yTrue {
			switch {
			case yTrue[i] == l && yPred[i] == l:
				tp++
			case yTrue[i] != l && yPred[i] == l:
				fp++
			case yTrue[i] == l && yPred[i] != l:
				fn++
			}
		}
		support := tp + fn
		if support == 0 {
			continue
		}
		var f1 float64
		if den := 2*tp + fp + fn; den > 0 {
			f1 = 2 * tp / den
		}
		total += f1 * support
	}
	return total / float64(len(yTrue))
}

// MeanStd returns the mean and population standard deviation of values.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// Summarize builds a cross-validation summary from per-fold scores.
func Summarize(accuracy, f1 []float64) model.CVSummary {
	accMean, accStd := MeanStd(accuracy)
	f1Mean, f1Std := MeanStd(f1)
	return model.CVSummary{
		Folds:        len(accuracy),
		Accuracy:     append([]float64(nil), accuracy...),
		F1:           append([]float64(nil), f1...),
		AccuracyMean: accMean,
		AccuracyStd:  accStd,
		F1Mean:       f1Mean,
		F1Std:        f1Std,
	}
}

// Softmax returns exp(v) normalized to sum to one.
func Softmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	maxV := floats.Max(v)
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Argmax returns the first index of the largest value, or -1 for an empty slice.
func Argmax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	return floats.MaxIdx(v)
}
