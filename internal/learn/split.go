package learn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrTooFewMembers reports a class with fewer samples than requested folds.
var ErrTooFewMembers = errors.New("too few members in class")

// Fold is one train/test partition of sample indexes.
type Fold struct {
	Train []int
	Test  []int
}

// TrainTestSplit partitions n samples with a seeded permutation. The test
// partition holds ceil(testSize*n) samples.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be between 0 and 1, got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || nTest >= n {
		return nil, nil, fmt.Errorf("cannot hold out %d of %d samples", nTest, n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// OversampleMinority appends randomly repeated samples of the least frequent
// class until it matches the most frequent one. Ties pick the smaller label.
func OversampleMinority(X [][]float64, y []int, seed int64) ([][]float64, []int) {
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return X, y
	}
	minority, majority := classes[0], classes[0]
	for _, c := range classes[1:] {
		if len(byClass[c]) < len(byClass[minority]) {
			minority = c
		}
		if len(byClass[c]) > len(byClass[majority]) {
			majority = c
		}
	}
	extra := len(byClass[majority]) - len(byClass[minority])
	outX := append(make([][]float64, 0, len(X)+extra), X...)
	outY := append(make([]int, 0, len(y)+extra), y...)
	rnd := rand.New(rand.NewSource(seed))
	pool := byClass[minority]
	for i := 0; i < extra; i++ {
		j := pool[rnd.Intn(len(pool))]
		outX = append(outX, X[j])
		outY = append(outY, y[j])
	}
	return outX, outY
}

// StratifiedKFold splits samples into k folds preserving class proportions.
// Samples of each class are shuffled with the seed before being dealt to folds.
func StratifiedKFold(y []int, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("folds must be >= 2, got %d", k)
	}
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := uniqueSorted(y)
	for _, c := range classes {
		if len(byClass[c]) < k {
			return nil, fmt.Errorf("%w: class %d has %d samples, %d folds requested", ErrTooFewMembers, c, len(byClass[c]), k)
		}
	}

	rnd := rand.New(rand.NewSource(seed))
	foldOf := make([]int, len(y))
	next := 0
	for _, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			foldOf[i] = next % k
			next++
		}
	}

	folds := make([]Fold, k)
	for i, f := range foldOf {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}
