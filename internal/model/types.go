// Package model defines shared data structures.
package model

import "time"

const (
	// SentinelCode is the first marker code that does not denote a trial.
	SentinelCode = 90
	// NonTargetCode is the code every non-target event is relabeled to.
	NonTargetCode = 3
)

// Event is a stimulus marker at a sample index.
type Event struct {
	Sample int
	Code   int
}

// Recording holds board rows by samples. The last row is the trigger channel.
type Recording struct {
	Rows [][]float64
}

// Samples returns the number of samples per row.
func (r Recording) Samples() int {
	if len(r.Rows) == 0 {
		return 0
	}
	return len(r.Rows[0])
}

// Trigger returns the trigger row, or nil for an empty recording.
func (r Recording) Trigger() []float64 {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[len(r.Rows)-1]
}

// RunMode selects whether preprocessing learns or applies the stimulus sequence.
type RunMode int

const (
	// Training learns the stimulus sequence from the recording.
	Training RunMode = iota
	// Inference matches the learned stimulus sequence in the recording.
	Inference
)

func (m RunMode) String() string {
	switch m {
	case Training:
		return "training"
	case Inference:
		return "inference"
	default:
		return "unknown"
	}
}

// Window is an epoch span in seconds relative to the anchoring event.
type Window struct {
	Start float64
	End   float64
}

// Baseline returns the baseline correction interval [Start, 0].
func (w Window) Baseline() Window {
	return Window{Start: w.Start, End: 0}
}

// Decision is the aggregated outcome of one stimulus sequence cycle.
type Decision struct {
	Class    int // 1-indexed position in Sequence
	Code     int // Sequence[Class-1]
	Sequence []int
	Scores   map[int]float64
}

// CVSummary aggregates cross-validation fold scores.
type CVSummary struct {
	Folds        int
	Accuracy     []float64 // per fold
	F1           []float64 // per fold
	AccuracyMean float64
	AccuracyStd  float64
	F1Mean       float64
	F1Std        float64
}

// TrainingRun summarizes a completed training pass.
type TrainingRun struct {
	ID            string
	StartedAt     time.Time
	EndedAt       time.Time
	Model         string
	Device        int
	TrainingClass int
	Sequence      []int
	Samples       int
	Features      int
	CV            *CVSummary
	CVError       string
	EvalAccuracy  float64
	EvalF1        float64
}

// DecisionRecord is a stored decision.
type DecisionRecord struct {
	ID        int64
	RunID     string
	CreatedAt time.Time
	Decision  Decision
}
