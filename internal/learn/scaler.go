package learn

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scaler names accepted by NewScaler.
const (
	StandardScaling = "standard"
	MinMaxScaling   = "minmax"
	NoScaling       = "none"
)

// Scaler rescales feature columns with parameters learned by Fit.
type Scaler interface {
	Fit(X [][]float64) error
	Transform(X [][]float64) ([][]float64, error)
}

// NewScaler returns an unfitted scaler by name.
func NewScaler(name string) (Scaler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StandardScaling:
		return &StandardScaler{}, nil
	case MinMaxScaling:
		return &MinMaxScaler{}, nil
	case NoScaling:
		return &IdentityScaler{}, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q (available: %s, %s, %s)", name, StandardScaling, MinMaxScaling, NoScaling)
	}
}

// StandardScaler centers columns to zero mean and unit population variance.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns column means and standard deviations.
func (s *StandardScaler) Fit(X [][]float64) error {
	cols, err := columns(X)
	if err != nil {
		return err
	}
	s.Mean = make([]float64, len(cols))
	s.Scale = make([]float64, len(cols))
	for j, col := range cols {
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform applies the fitted centering and scaling to a copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, fmt.Errorf("standard scaler: %w", ErrNotFitted)
	}
	if _, err := checkX(X, len(s.Mean)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		floats.SubTo(r, row, s.Mean)
		floats.Div(r, s.Scale)
		out[i] = r
	}
	return out, nil
}

// MinMaxScaler maps each column onto [0, 1].
type MinMaxScaler struct {
	Min   []float64
	Range []float64
}

// Fit learns column minimums and ranges.
func (s *MinMaxScaler) Fit(X [][]float64) error {
	cols, err := columns(X)
	if err != nil {
		return err
	}
	s.Min = make([]float64, len(cols))
	s.Range = make([]float64, len(cols))
	for j, col := range cols {
		lo, hi := floats.Min(col), floats.Max(col)
		s.Min[j] = lo
		s.Range[j] = hi - lo
		if s.Range[j] == 0 {
			s.Range[j] = 1
		}
	}
	return nil
}

// Transform applies the fitted mapping to a copy of X.
func (s *MinMaxScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Min == nil {
		return nil, fmt.Errorf("minmax scaler: %w", ErrNotFitted)
	}
	if _, err := checkX(X, len(s.Min)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		floats.SubTo(r, row, s.Min)
		floats.Div(r, s.Range)
		out[i] = r
	}
	return out, nil
}

// IdentityScaler copies features unchanged.
type IdentityScaler struct {
	dim    int
	fitted bool
}

// Fit records the feature count.
func (s *IdentityScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: no samples", ErrShape)
	}
	dim, err := checkX(X, len(X[0]))
	if err != nil {
		return err
	}
	s.dim = dim
	s.fitted = true
	return nil
}

// Transform returns a copy of X.
func (s *IdentityScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.fitted {
		return nil, fmt.Errorf("identity scaler: %w", ErrNotFitted)
	}
	if _, err := checkX(X, s.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), row...)
	}
	return out, nil
}

func columns(X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrShape)
	}
	dim, err := checkX(X, len(X[0]))
	if err != nil {
		return nil, err
	}
	cols := make([][]float64, dim)
	for j := range cols {
		col := make([]float64, len(X))
		for i, row := range X {
			col[i] = row[j]
		}
		cols[j] = col
	}
	return cols, nil
}
