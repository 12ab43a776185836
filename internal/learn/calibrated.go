package learn

import (
	"fmt"
	"math"
)

// Calibrated is an ensemble of base models, each fit on k-1 folds and
// sigmoid-calibrated (Platt scaling) on the held-out fold. Binary only.
type Calibrated struct {
	Base  func() Model
	Folds int
	Seed  int64

	classes []int
	members []calibratedMember
}

type calibratedMember struct {
	model Model
	a, b  float64
}

// NewCalibrated returns a sigmoid-calibrated ensemble over folds.
func NewCalibrated(base func() Model, folds int, seed int64) *Calibrated {
	return &Calibrated{Base: base, Folds: folds, Seed: seed}
}

// Fit trains one calibrated member per fold.
func (c *Calibrated) Fit(X [][]float64, y []int) error {
	if _, err := checkXY(X, y); err != nil {
		return err
	}
	classes := uniqueSorted(y)
	if len(classes) != 2 {
		return fmt.Errorf("calibrated: need exactly 2 classes, got %d", len(classes))
	}
	folds, err := StratifiedKFold(y, c.Folds, c.Seed)
	if err != nil {
		return fmt.Errorf("calibrated: %w", err)
	}
	members := make([]calibratedMember, 0, len(folds))
	for i, fold := range folds {
		m := c.Base()
		trainX, trainY := subset(X, y, fold.Train)
		if err := m.Fit(trainX, trainY); err != nil {
			return fmt.Errorf("calibrated: fold %d: %w", i, err)
		}
		testX, testY := subset(X, y, fold.Test)
		scores, err := positiveScores(m, classes[1], testX)
		if err != nil {
			return fmt.Errorf("calibrated: fold %d: %w", i, err)
		}
		targets := make([]bool, len(testY))
		for j, v := range testY {
			targets[j] = v == classes[1]
		}
		a, b := fitSigmoid(scores, targets)
		members = append(members, calibratedMember{model: m, a: a, b: b})
	}
	c.classes = classes
	c.members = members
	return nil
}

// PredictProba averages the calibrated probabilities of every member.
func (c *Calibrated) PredictProba(X [][]float64) ([][]float64, error) {
	if c.members == nil {
		return nil, fmt.Errorf("calibrated: %w", ErrNotFitted)
	}
	pos := make([]float64, len(X))
	for _, m := range c.members {
		scores, err := positiveScores(m.model, c.classes[1], X)
		if err != nil {
			return nil, err
		}
		for i, s := range scores {
			pos[i] += sigmoid(m.a, m.b, s)
		}
	}
	out := make([][]float64, len(X))
	for i, p := range pos {
		p /= float64(len(c.members))
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// Predict returns the more probable class.
func (c *Calibrated) Predict(X [][]float64) ([]int, error) {
	return predictFromProba(c, X)
}

// Classes returns the fitted labels.
func (c *Calibrated) Classes() []int {
	return append([]int(nil), c.classes...)
}

func positiveScores(m Model, positive int, X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	col := -1
	for j, cl := range m.Classes() {
		if cl == positive {
			col = j
		}
	}
	out := make([]float64, len(proba))
	if col < 0 {
		return out, nil
	}
	for i, row := range proba {
		out[i] = row[col]
	}
	return out, nil
}

// sigmoid returns P(positive | score) = 1 / (1 + exp(a*score + b)).
func sigmoid(a, b, score float64) float64 {
	f := a*score + b
	if f >= 0 {
		e := math.Exp(-f)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(f))
}

// fitSigmoid fits Platt's sigmoid with the Newton method and backtracking
// line search of Lin, Lin and Weng (2007).
func fitSigmoid(scores []float64, positive []bool) (float64, float64) {
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	var prior1, prior0 float64
	for _, p := range positive {
		if p {
			prior1++
		} else {
			prior0++
		}
	}
	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	t := make([]float64, len(scores))
	for i, p := range positive {
		if p {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	objective := func(a, b float64) float64 {
		var f float64
		for i, s := range scores {
			fApB := s*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, s := range scores {
			fApB := s*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += s * s * d2
			h22 += d2
			h21 += s * d2
			d1 := t[i] - p
			g1 += s * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			na, nb := a+step*dA, b+step*dB
			if nf := objective(na, nb); nf < fval+1e-4*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}
