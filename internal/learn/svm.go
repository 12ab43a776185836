package learn

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	libSvm "github.com/ewalker544/libsvm-go"
)

// SVM is a linear-kernel C-SVC with probability estimates, trained by libsvm.
type SVM struct {
	C float64

	model   *libSvm.Model
	classes []int
	dim     int
}

// NewSVM returns a linear SVM with penalty c.
func NewSVM(c float64) *SVM {
	return &SVM{C: c}
}

// Fit writes the samples in LIBSVM format and trains on them.
func (s *SVM) Fit(X [][]float64, y []int) error {
	dim, err := checkXY(X, y)
	if err != nil {
		return err
	}
	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return fmt.Errorf("svm: need at least 2 classes, got %d", len(classes))
	}

	path, err := writeProblem(X, y)
	if err != nil {
		return fmt.Errorf("svm: failed to write problem: %w", err)
	}
	defer func() { _ = os.Remove(path) }()

	param := libSvm.NewParameter()
	param.SvmType = libSvm.C_SVC
	param.KernelType = libSvm.LINEAR
	param.C = s.C
	param.Probability = true
	param.QuietMode = true

	problem, err := libSvm.NewProblem(path, param)
	if err != nil {
		return fmt.Errorf("svm: failed to load problem: %w", err)
	}
	model := libSvm.NewModel(param)
	model.Train(problem)

	s.model = model
	s.classes = classes
	s.dim = dim
	return nil
}

// Predict returns the libsvm decision for each sample.
func (s *SVM) Predict(X [][]float64) ([]int, error) {
	if err := s.ready(X); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, row := range X {
		out[i] = int(math.Round(s.model.Predict(sparse(row))))
	}
	return out, nil
}

// PredictProba returns libsvm's Platt-scaled class probabilities. libsvm
// orders them by first appearance in the problem file, which writeProblem
// keeps equal to Classes.
func (s *SVM) PredictProba(X [][]float64) ([][]float64, error) {
	if err := s.ready(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		_, est := s.model.PredictProbability(sparse(row))
		if len(est) != len(s.classes) {
			return nil, fmt.Errorf("svm: expected %d probabilities, got %d", len(s.classes), len(est))
		}
		out[i] = append([]float64(nil), est...)
	}
	return out, nil
}

// Classes returns the fitted labels.
func (s *SVM) Classes() []int {
	return append([]int(nil), s.classes...)
}

func (s *SVM) ready(X [][]float64) error {
	if s.model == nil {
		return fmt.Errorf("svm: %w", ErrNotFitted)
	}
	_, err := checkX(X, s.dim)
	return err
}

// sparse converts a dense row to libsvm's 1-indexed sparse form.
func sparse(row []float64) map[int]float64 {
	x := make(map[int]float64, len(row))
	for j, v := range row {
		if v != 0 {
			x[j+1] = v
		}
	}
	return x
}

func writeProblem(X [][]float64, y []int) (string, error) {
	f, err := os.CreateTemp("", "oddball-svm-*.libsvm")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := encodeProblem(bufio.NewWriter(f), X, y); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// encodeProblem writes the samples grouped by ascending label.
func encodeProblem(w *bufio.Writer, X [][]float64, y []int) error {
	order := make([]int, len(y))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return y[order[a]] < y[order[b]] })
	for _, i := range order {
		row := X[i]
		if _, err := w.WriteString(strconv.Itoa(y[i])); err != nil {
			return err
		}
		for j, v := range row {
			if v == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, " %d:%s", j+1, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}
