package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/oddball/internal/model"
)

func TestAccuracy(t *testing.T) {
	if got := Accuracy([]int{0, 1, 1, 0}, []int{0, 1, 0, 0}); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if got := Accuracy(nil, nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
}

func TestWeightedF1(t *testing.T) {
	got := WeightedF1([]int{0, 0, 1, 1, 1}, []int{0, 1, 1, 1, 0})
	if math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("expected 0.6, got %v", got)
	}
	if got := WeightedF1([]int{1, 3, 3}, []int{1, 3, 3}); got != 1 {
		t.Fatalf("expected 1 for perfect predictions, got %v", got)
	}
	// A label that is only predicted carries no weight.
	if got := WeightedF1([]int{0, 0}, []int{0, 1}); math.Abs(got-2.0/3) > 1e-9 {
		t.Fatalf("expected 2/3, got %v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{0.5, 1}, []float64{0.4, 0.8})
	if s.Folds != 2 || s.AccuracyMean != 0.75 || math.Abs(s.AccuracyStd-0.25) > 1e-12 {
		t.Fatalf("unexpected accuracy summary %+v", s)
	}
	if math.Abs(s.F1Mean-0.6) > 1e-12 || math.Abs(s.F1Std-0.2) > 1e-12 {
		t.Fatalf("unexpected f1 summary %+v", s)
	}
}

func TestSoftmax(t *testing.T) {
	out := Softmax([]float64{0.1, 0.9, 0.3, 0.2})
	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("softmax sums to %v", sum)
	}
	if Argmax(out) != 1 {
		t.Fatalf("expected argmax 1, got %d", Argmax(out))
	}
	big := Softmax([]float64{1000, 1000})
	if big[0] != 0.5 || big[1] != 0.5 {
		t.Fatalf("softmax overflowed: %v", big)
	}
}

func TestArgmaxAndRound(t *testing.T) {
	if got := Argmax([]float64{0.2, 0.7, 0.7}); got != 1 {
		t.Fatalf("expected first maximum, got %d", got)
	}
	if got := Argmax(nil); got != -1 {
		t.Fatalf("expected -1 for empty input, got %d", got)
	}
	if got := Round(0.123456, 4); got != 0.1235 {
		t.Fatalf("expected 0.1235, got %v", got)
	}
}

func TestRenderDecisionMarksSelectedClass(t *testing.T) {
	d := model.Decision{
		Class:    2,
		Code:     4,
		Sequence: []int{1, 4, 2},
		Scores:   map[int]float64{1: 0.2, 4: 0.5, 2: 0.3},
	}
	var buf bytes.Buffer
	if err := RenderDecision(&buf, d, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "class 2 (code 4)") {
		t.Fatalf("unexpected heading %q", lines[0])
	}
	if !strings.HasSuffix(lines[3], "<") {
		t.Fatalf("expected selected marker on row 2, got %q", lines[3])
	}
	if strings.Contains(lines[2], "<") || strings.Contains(lines[4], "<") {
		t.Fatalf("marker on an unselected row:\n%s", buf.String())
	}
}

func TestRenderTrainingRun(t *testing.T) {
	run := model.TrainingRun{
		ID:            "abc",
		Model:         "LDA",
		TrainingClass: 1,
		Sequence:      []int{1, 2, 3},
		CVError:       "too few members",
		EvalAccuracy:  1,
		EvalF1:        1,
	}
	var buf bytes.Buffer
	if err := RenderTrainingRun(&buf, run, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sequence: 1,2,3", "Cross-validation failed: too few members", "Eval accuracy: 1.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRuns(&buf, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No training runs found.") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
	buf.Reset()
	runs := []model.TrainingRun{{ID: "0123456789", StartedAt: time.Unix(0, 0), Model: "SVM", Sequence: []int{1, 2}}}
	if err := RenderRuns(&buf, runs); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "01234567 ") || strings.Contains(buf.String(), "0123456789") {
		t.Fatalf("expected truncated run id:\n%s", buf.String())
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{0.5, 0.5, 0.5}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
}

func TestRenderDevices(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderDevices(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected a header and 4 boards, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(buf.String(), "enophone") || !strings.Contains(buf.String(), "C3,C4") {
		t.Fatalf("expected enophone reference channels:\n%s", buf.String())
	}
}
