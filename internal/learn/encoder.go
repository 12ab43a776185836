package learn

import "fmt"

// LabelEncoder maps labels onto 0..n-1 in ascending label order.
type LabelEncoder struct {
	classes []int
	index   map[int]int
}

// Fit learns the label set of y.
func (e *LabelEncoder) Fit(y []int) {
	e.classes = uniqueSorted(y)
	e.index = classIndex(e.classes)
}

// FitTransform fits the encoder and encodes y.
func (e *LabelEncoder) FitTransform(y []int) []int {
	e.Fit(y)
	out, _ := e.Transform(y)
	return out
}

// Transform encodes y. Labels unseen by Fit are an error.
func (e *LabelEncoder) Transform(y []int) ([]int, error) {
	if e.index == nil {
		return nil, fmt.Errorf("label encoder: %w", ErrNotFitted)
	}
	out := make([]int, len(y))
	for i, v := range y {
		code, ok := e.index[v]
		if !ok {
			return nil, fmt.Errorf("label encoder: unknown label %d", v)
		}
		out[i] = code
	}
	return out, nil
}

// Inverse decodes encoded labels.
func (e *LabelEncoder) Inverse(y []int) ([]int, error) {
	out := make([]int, len(y))
	for i, v := range y {
		if v < 0 || v >= len(e.classes) {
			return nil, fmt.Errorf("label encoder: encoded label %d out of range", v)
		}
		out[i] = e.classes[v]
	}
	return out, nil
}

// Index returns the encoded value of a label.
func (e *LabelEncoder) Index(label int) (int, bool) {
	code, ok := e.index[label]
	return code, ok
}

// Classes returns the labels in encoded order.
func (e *LabelEncoder) Classes() []int {
	return append([]int(nil), e.classes...)
}
