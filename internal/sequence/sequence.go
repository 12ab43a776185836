// Package sequence locates a stimulus sequence inside a marker stream.
package sequence

import (
	"errors"

	"github.com/verte-zerg/oddball/internal/model"
)

var (
	// ErrInsufficientMatch reports that the stream ended before a complete match.
	ErrInsufficientMatch = errors.New("not enough events found for the stimulus sequence")
	// ErrEmptySequence reports a match attempt against an empty sequence.
	ErrEmptySequence = errors.New("stimulus sequence is empty")
)

// Filter drops sentinel markers (codes >= model.SentinelCode).
func Filter(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Code >= model.SentinelCode {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Learn returns the distinct codes of events in first-seen order.
func Learn(events []model.Event) []int {
	seen := make(map[int]struct{}, len(events))
	var seq []int
	for _, e := range events {
		if _, ok := seen[e.Code]; ok {
			continue
		}
		seen[e.Code] = struct{}{}
		seq = append(seq, e.Code)
	}
	return seq
}

// Match returns the first run of events whose codes equal seq in order.
//
// A mismatching event aborts the current attempt and is not re-tested
// against seq[0]; scanning resumes with the next event.
func Match(events []model.Event, seq []int) ([]model.Event, error) {
	if len(seq) == 0 {
		return nil, ErrEmptySequence
	}
	matched := make([]model.Event, 0, len(seq))
	j := 0
	for _, e := range events {
		if e.Code != seq[j] {
			j = 0
			matched = matched[:0]
			continue
		}
		matched = append(matched, e)
		j++
		if j == len(seq) {
			return matched, nil
		}
	}
	return nil, ErrInsufficientMatch
}

// Relabel maps target codes to target and every other code to model.NonTargetCode.
// The input is not modified.
func Relabel(events []model.Event, target int) []model.Event {
	out := make([]model.Event, len(events))
	for i, e := range events {
		if e.Code != target {
			e.Code = model.NonTargetCode
		}
		out[i] = e
	}
	return out
}
