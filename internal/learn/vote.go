package learn

import "fmt"

// Vote combines fitted members by majority vote over their predicted labels.
// Probabilities are the mean of the members' probabilities.
type Vote struct {
	Members []Model

	classes []int
}

// NewVote returns a majority vote over members.
func NewVote(members ...Model) *Vote {
	return &Vote{Members: members}
}

// Fit fits every member on the same data.
func (v *Vote) Fit(X [][]float64, y []int) error {
	if len(v.Members) == 0 {
		return fmt.Errorf("vote: no members")
	}
	if _, err := checkXY(X, y); err != nil {
		return err
	}
	for i, m := range v.Members {
		if err := m.Fit(X, y); err != nil {
			return fmt.Errorf("vote: member %d: %w", i, err)
		}
	}
	v.classes = uniqueSorted(y)
	return nil
}

// Predict returns the label most members agree on. Ties pick the smaller label.
func (v *Vote) Predict(X [][]float64) ([]int, error) {
	if v.classes == nil {
		return nil, fmt.Errorf("vote: %w", ErrNotFitted)
	}
	idx := classIndex(v.classes)
	votes := make([][]float64, len(X))
	for i := range votes {
		votes[i] = make([]float64, len(v.classes))
	}
	for _, m := range v.Members {
		pred, err := m.Predict(X)
		if err != nil {
			return nil, err
		}
		for i, label := range pred {
			if c, ok := idx[label]; ok {
				votes[i][c]++
			}
		}
	}
	out := make([]int, len(X))
	for i, row := range votes {
		out[i] = v.classes[argmax(row)]
	}
	return out, nil
}

// PredictProba returns the mean member probabilities.
func (v *Vote) PredictProba(X [][]float64) ([][]float64, error) {
	if v.classes == nil {
		return nil, fmt.Errorf("vote: %w", ErrNotFitted)
	}
	idx := classIndex(v.classes)
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = make([]float64, len(v.classes))
	}
	for _, m := range v.Members {
		proba, err := m.PredictProba(X)
		if err != nil {
			return nil, err
		}
		cols := m.Classes()
		for i, row := range proba {
			for j, p := range row {
				if c, ok := idx[cols[j]]; ok {
					out[i][c] += p / float64(len(v.Members))
				}
			}
		}
	}
	return out, nil
}

// Classes returns the fitted labels.
func (v *Vote) Classes() []int {
	return append([]int(nil), v.classes...)
}
