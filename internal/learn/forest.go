package learn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Forest is a bagged ensemble of CART trees split on Gini impurity.
// MaxDepth 0 grows trees until leaves are pure. MaxFeatures is the number of
// features tried per split, sqrt(d) when 0. Balanced weights samples
// inversely to their class frequency.
type Forest struct {
	Trees       int
	MaxDepth    int
	MinSplit    int
	MaxFeatures int
	Balanced    bool
	Seed        int64

	classes []int
	roots   []*treeNode
	dim     int
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	dist      []float64 // class distribution, leaves only
}

// NewForest returns a forest of n trees.
func NewForest(n int, seed int64) *Forest {
	return &Forest{Trees: n, MinSplit: 2, Seed: seed}
}

// Fit grows every tree on a bootstrap sample of X.
func (f *Forest) Fit(X [][]float64, y []int) error {
	dim, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if f.Trees <= 0 {
		return fmt.Errorf("forest: trees must be > 0, got %d", f.Trees)
	}
	classes := uniqueSorted(y)
	idx := classIndex(classes)
	labels := make([]int, len(y))
	counts := make([]float64, len(classes))
	for i, v := range y {
		labels[i] = idx[v]
		counts[labels[i]]++
	}
	weights := make([]float64, len(y))
	for i, c := range labels {
		weights[i] = 1
		if f.Balanced {
			weights[i] = float64(len(y)) / (float64(len(classes)) * counts[c])
		}
	}

	mtry := f.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Sqrt(float64(dim)))
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > dim {
		mtry = dim
	}

	g := &grower{
		X:       X,
		labels:  labels,
		weights: weights,
		k:       len(classes),
		mtry:    mtry,
		dim:     dim,
		depth:   f.MaxDepth,
		minimum: f.MinSplit,
		rnd:     rand.New(rand.NewSource(f.Seed)),
	}
	roots := make([]*treeNode, f.Trees)
	for t := range roots {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = g.rnd.Intn(len(X))
		}
		roots[t] = g.grow(sample, 0)
	}

	f.classes = classes
	f.roots = roots
	f.dim = dim
	return nil
}

// PredictProba averages the leaf class distributions over all trees.
func (f *Forest) PredictProba(X [][]float64) ([][]float64, error) {
	if f.roots == nil {
		return nil, fmt.Errorf("forest: %w", ErrNotFitted)
	}
	if _, err := checkX(X, f.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		probs := make([]float64, len(f.classes))
		for _, root := range f.roots {
			n := root
			for n.dist == nil {
				if row[n.feature] <= n.threshold {
					n = n.left
				} else {
					n = n.right
				}
			}
			for c, p := range n.dist {
				probs[c] += p
			}
		}
		for c := range probs {
			probs[c] /= float64(len(f.roots))
		}
		out[i] = probs
	}
	return out, nil
}

// Predict returns the most probable class.
func (f *Forest) Predict(X [][]float64) ([]int, error) {
	return predictFromProba(f, X)
}

// Classes returns the fitted labels.
func (f *Forest) Classes() []int {
	return append([]int(nil), f.classes...)
}

type grower struct {
	X       [][]float64
	labels  []int
	weights []float64
	k       int
	mtry    int
	dim     int
	depth   int
	minimum int
	rnd     *rand.Rand
}

func (g *grower) leaf(sample []int) *treeNode {
	dist := make([]float64, g.k)
	var total float64
	for _, i := range sample {
		dist[g.labels[i]] += g.weights[i]
		total += g.weights[i]
	}
	if total > 0 {
		for c := range dist {
			dist[c] /= total
		}
	}
	return &treeNode{dist: dist}
}

func (g *grower) grow(sample []int, depth int) *treeNode {
	if len(sample) < g.minimum || (g.depth > 0 && depth >= g.depth) || g.pure(sample) {
		return g.leaf(sample)
	}
	feature, threshold, ok := g.bestSplit(sample)
	if !ok {
		return g.leaf(sample)
	}
	var left, right []int
	for _, i := range sample {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      g.grow(left, depth+1),
		right:     g.grow(right, depth+1),
	}
}

func (g *grower) pure(sample []int) bool {
	first := g.labels[sample[0]]
	for _, i := range sample[1:] {
		if g.labels[i] != first {
			return false
		}
	}
	return true
}

func (g *grower) bestSplit(sample []int) (int, float64, bool) {
	total := make([]float64, g.k)
	var totalW float64
	for _, i := range sample {
		total[g.labels[i]] += g.weights[i]
		totalW += g.weights[i]
	}
	parent := gini(total, totalW)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	order := append([]int(nil), sample...)
	left := make([]float64, g.k)
	for _, feature := range g.rnd.Perm(g.dim)[:g.mtry] {
		sort.Slice(order, func(a, b int) bool {
			return g.X[order[a]][feature] < g.X[order[b]][feature]
		})
		for c := range left {
			left[c] = 0
		}
		var leftW float64
		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			left[g.labels[i]] += g.weights[i]
			leftW += g.weights[i]
			v, next := g.X[i][feature], g.X[order[pos+1]][feature]
			if v == next {
				continue
			}
			rightW := totalW - leftW
			var impurity float64
			impurity += leftW / totalW * gini(left, leftW)
			impurity += rightW / totalW * giniRest(total, left, rightW)
			if gain := parent - impurity; gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = (v + next) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	sum := 1.0
	for _, c := range counts {
		p := c / total
		sum -= p * p
	}
	return sum
}

func giniRest(total, left []float64, rightW float64) float64 {
	if rightW == 0 {
		return 0
	}
	sum := 1.0
	for c := range total {
		p := (total[c] - left[c]) / rightW
		sum -= p * p
	}
	return sum
}
