// Package learn provides the classifier models, feature scalers and data
// partitioning used to train trial classifiers.
package learn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownModel reports a preset name with no registered constructor.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotFitted reports use of a model or scaler before Fit.
	ErrNotFitted = errors.New("not fitted")
	// ErrShape reports inconsistent sample or feature counts.
	ErrShape = errors.New("inconsistent data shape")
)

// Model is a classifier over dense feature vectors.
type Model interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	// PredictProba returns one row per sample, columns ordered as Classes.
	PredictProba(X [][]float64) ([][]float64, error)
	// Classes returns the sorted labels seen by Fit.
	Classes() []int
}

// Factory builds a fresh, untrained model.
type Factory func(seed int64) Model

// Preset names.
const (
	SVMPreset = "SVM"
	LDAPreset = "LDA"
	RFPreset  = "RF"
	CALPreset = "CAL"
	MAJPreset = "MAJ"
)

var presets = map[string]Factory{
	SVMPreset: func(seed int64) Model {
		return NewSVM(1)
	},
	LDAPreset: func(seed int64) Model {
		return NewLDA()
	},
	RFPreset: func(seed int64) Model {
		return NewForest(10, seed)
	},
	CALPreset: func(seed int64) Model {
		return NewCalibrated(func() Model { return NewLDA() }, 5, seed)
	},
	MAJPreset: func(seed int64) Model {
		return NewVote(
			NewCalibrated(func() Model {
				f := NewForest(100, seed)
				f.Balanced = true
				return f
			}, 5, seed),
			NewLDA(),
			NewCalibrated(func() Model { return NewSVM(1) }, 5, seed),
		)
	},
}

// New returns a freshly constructed model for a preset name.
func New(name string, seed int64) (Model, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(seed), nil
}

// Lookup returns the constructor of a preset.
func Lookup(name string) (Factory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: model name is empty", ErrUnknownModel)
	}
	f, ok := presets[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownModel, name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names returns the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkXY(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrShape)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d samples but %d labels", ErrShape, len(X), len(y))
	}
	return checkX(X, len(X[0]))
}

func checkX(X [][]float64, dim int) (int, error) {
	for i, row := range X {
		if len(row) != dim {
			return 0, fmt.Errorf("%w: sample %d has %d features, expected %d", ErrShape, i, len(row), dim)
		}
	}
	return dim, nil
}

// uniqueSorted returns the distinct labels of y in ascending order.
func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{}, 2)
	var out []int
	for _, v := range y {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func classIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// argmax returns the first index of the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func predictFromProba(m Model, X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	classes := m.Classes()
	out := make([]int, len(proba))
	for i, row := range proba {
		out[i] = classes[argmax(row)]
	}
	return out, nil
}

func subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
