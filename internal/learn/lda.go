package learn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultShrinkage is the share of the scaled identity mixed into the pooled covariance.
const DefaultShrinkage = 0.01

// LDA is a linear discriminant with a shared, shrunk covariance estimate.
type LDA struct {
	Shrinkage float64

	classes   []int
	coef      *mat.Dense // features x classes
	intercept []float64
}

// NewLDA returns an LDA with DefaultShrinkage.
func NewLDA() *LDA {
	return &LDA{Shrinkage: DefaultShrinkage}
}

// Fit estimates class means, priors and the pooled covariance.
func (l *LDA) Fit(X [][]float64, y []int) error {
	d, err := checkXY(X, y)
	if err != nil {
		return err
	}
	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return fmt.Errorf("lda: need at least 2 classes, got %d", len(classes))
	}
	idx := classIndex(classes)
	n, k := len(X), len(classes)

	means := mat.NewDense(d, k, nil)
	counts := make([]float64, k)
	for i, row := range X {
		c := idx[y[i]]
		counts[c]++
		for j, v := range row {
			means.Set(j, c, means.At(j, c)+v)
		}
	}
	for c := 0; c < k; c++ {
		for j := 0; j < d; j++ {
			means.Set(j, c, means.At(j, c)/counts[c])
		}
	}

	centered := mat.NewDense(n, d, nil)
	for i, row := range X {
		c := idx[y[i]]
		for j, v := range row {
			centered.Set(i, j, v-means.At(j, c))
		}
	}
	dof := float64(n - k)
	if dof <= 0 {
		dof = float64(n)
	}
	var cov mat.SymDense
	cov.SymOuterK(1/dof, centered.T())

	var trace float64
	for j := 0; j < d; j++ {
		trace += cov.At(j, j)
	}
	mu := trace / float64(d)
	if mu == 0 {
		mu = 1
	}
	cov.ScaleSym(1-l.Shrinkage, &cov)
	shrink := l.Shrinkage
	if shrink <= 0 {
		shrink = 1e-9
	}
	for j := 0; j < d; j++ {
		cov.SetSym(j, j, cov.At(j, j)+shrink*mu)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&cov); !ok {
		return errors.New("lda: covariance is not positive definite")
	}
	var coef mat.Dense
	if err := chol.SolveTo(&coef, means); err != nil {
		return fmt.Errorf("lda: failed to solve discriminant: %w", err)
	}

	intercept := make([]float64, k)
	for c := 0; c < k; c++ {
		var quad float64
		for j := 0; j < d; j++ {
			quad += means.At(j, c) * coef.At(j, c)
		}
		intercept[c] = -0.5*quad + math.Log(counts[c]/float64(n))
	}

	l.classes = classes
	l.coef = &coef
	l.intercept = intercept
	return nil
}

// Decision returns the discriminant score of every class for each sample.
func (l *LDA) Decision(X [][]float64) ([][]float64, error) {
	if l.coef == nil {
		return nil, fmt.Errorf("lda: %w", ErrNotFitted)
	}
	d, _ := l.coef.Dims()
	if len(X) == 0 {
		return nil, nil
	}
	if _, err := checkX(X, d); err != nil {
		return nil, err
	}
	data := make([]float64, 0, len(X)*d)
	for _, row := range X {
		data = append(data, row...)
	}
	var scores mat.Dense
	scores.Mul(mat.NewDense(len(X), d, data), l.coef)
	out := make([][]float64, len(X))
	for i := range out {
		row := mat.Row(nil, i, &scores)
		floats.Add(row, l.intercept)
		out[i] = row
	}
	return out, nil
}

// PredictProba returns softmax-normalized discriminant scores.
func (l *LDA) PredictProba(X [][]float64) ([][]float64, error) {
	scores, err := l.Decision(X)
	if err != nil {
		return nil, err
	}
	for _, row := range scores {
		softmaxInPlace(row)
	}
	return scores, nil
}

// Predict returns the class with the largest discriminant.
func (l *LDA) Predict(X [][]float64) ([]int, error) {
	return predictFromProba(l, X)
}

// Classes returns the fitted labels.
func (l *LDA) Classes() []int {
	return append([]int(nil), l.classes...)
}

func softmaxInPlace(v []float64) {
	if len(v) == 0 {
		return
	}
	maxV := floats.Max(v)
	floats.AddConst(-maxV, v)
	for i, x := range v {
		v[i] = math.Exp(x)
	}
	floats.Scale(1/floats.Sum(v), v)
}
