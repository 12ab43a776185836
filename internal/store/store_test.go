package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/verte-zerg/oddball/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "oddball.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return st
}

func sampleRun(id string, ended time.Time) model.TrainingRun {
	return model.TrainingRun{
		ID:            id,
		StartedAt:     ended.Add(-time.Minute),
		EndedAt:       ended,
		Model:         "LDA",
		Device:        -1,
		TrainingClass: 1,
		Sequence:      []int{1, 2, 3, 4},
		Samples:       120,
		Features:      402,
		CV: &model.CVSummary{
			Folds:        2,
			Accuracy:     []float64{1, 0.9},
			F1:           []float64{1, 0.85},
			AccuracyMean: 0.95,
			AccuracyStd:  0.05,
			F1Mean:       0.925,
			F1Std:        0.075,
		},
		EvalAccuracy: 1,
		EvalF1:       1,
	}
}

func TestRunsRoundTrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := sampleRun("aaaa1111-0000", base)
	second := sampleRun("bbbb2222-0000", base.Add(time.Hour))
	second.CV = nil
	second.CVError = "too few members in class"
	for _, run := range []model.TrainingRun{first, second} {
		if err := st.InsertRun(ctx, run); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	if runs[0].CV != nil || runs[0].CVError != second.CVError {
		t.Fatalf("expected cv error to round-trip, got %+v", runs[0])
	}

	got, err := st.GetRun(ctx, "aaaa")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !got.EndedAt.Equal(first.EndedAt) || !got.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("times did not round-trip: %+v", got)
	}
	got.StartedAt, got.EndedAt = first.StartedAt, first.EndedAt
	if !reflect.DeepEqual(got, first) {
		t.Fatalf("expected %+v, got %+v", first, got)
	}

	limited, err := st.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected one run, got %d", len(limited))
	}
}

func TestGetRunErrors(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Now()
	if _, err := st.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = st.InsertRun(ctx, sampleRun("abc-1", now))
	_ = st.InsertRun(ctx, sampleRun("abc-2", now))
	if _, err := st.GetRun(ctx, "abc"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ambiguous prefix error, got %v", err)
	}
	if err := st.InsertRun(ctx, sampleRun("abc-1", now)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestDecisionsRoundTrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	d1 := model.Decision{Class: 2, Code: 7, Sequence: []int{4, 7, 9}, Scores: map[int]float64{4: 0.2, 7: 0.6, 9: 0.2}}
	d2 := model.Decision{Class: 1, Code: 4, Sequence: []int{4, 7, 9}, Scores: map[int]float64{4: 1, 7: 0, 9: 0}}
	id1, err := st.InsertDecision(ctx, "run-a", at, d1)
	if err != nil {
		t.Fatalf("insert decision: %v", err)
	}
	if _, err := st.InsertDecision(ctx, "run-b", at, d2); err != nil {
		t.Fatalf("insert decision: %v", err)
	}

	got, err := st.ListDecisions(ctx, "run-a")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(got) != 1 || got[0].ID != id1 || got[0].RunID != "run-a" {
		t.Fatalf("unexpected decisions %+v", got)
	}
	if !reflect.DeepEqual(got[0].Decision, d1) {
		t.Fatalf("expected %+v, got %+v", d1, got[0].Decision)
	}
	if !got[0].CreatedAt.Equal(at) {
		t.Fatalf("expected created at %v, got %v", at, got[0].CreatedAt)
	}

	all, err := st.ListDecisions(ctx, "")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(all) != 2 || all[1].Decision.Code != 4 {
		t.Fatalf("unexpected decisions %+v", all)
	}
}
