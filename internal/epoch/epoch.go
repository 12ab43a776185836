// Package epoch cuts fixed-length, baseline-corrected windows out of a
// continuous multichannel signal.
package epoch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/oddball/internal/model"
)

// ErrEpoching reports that epochs could not be built from the inputs.
var ErrEpoching = errors.New("epoching failed")

// Params configures Extract.
type Params struct {
	SamplingRate float64
	Window       model.Window
	Baseline     model.Window
	// EventIDs names the event codes to epoch. Events with other codes are ignored.
	EventIDs map[string]int
}

// Epochs holds windows anchored at events, epochs x channels x samples.
type Epochs struct {
	Data    [][][]float64
	Events  []model.Event
	Dropped int
}

// Len returns the number of epochs.
func (e Epochs) Len() int {
	return len(e.Data)
}

// Labels returns the event code of every epoch.
func (e Epochs) Labels() []int {
	labels := make([]int, len(e.Events))
	for i, ev := range e.Events {
		labels[i] = ev.Code
	}
	return labels
}

// Flatten concatenates the channels of each epoch into one feature vector.
func (e Epochs) Flatten() [][]float64 {
	out := make([][]float64, len(e.Data))
	for i, ep := range e.Data {
		var size int
		for _, ch := range ep {
			size += len(ch)
		}
		row := make([]float64, 0, size)
		for _, ch := range ep {
			row = append(row, ch...)
		}
		out[i] = row
	}
	return out
}

// WindowLength returns the number of samples in a window, both ends inclusive.
func WindowLength(samplingRate float64, w model.Window) int {
	return offset(w.End, samplingRate) - offset(w.Start, samplingRate) + 1
}

func offset(seconds, samplingRate float64) int {
	return int(math.Round(seconds * samplingRate))
}

// FindEvents reads events from a trigger channel. An event starts wherever
// the trigger rises from zero, or steps up from one code to a larger one,
// including the first sample. Direct steps down to a smaller code are not
// events.
func FindEvents(trigger []float64) []model.Event {
	var events []model.Event
	prev := 0
	for i, v := range trigger {
		code := int(math.Round(v))
		if code != 0 && (prev == 0 || code > prev) {
			events = append(events, model.Event{Sample: i, Code: code})
		}
		prev = code
	}
	return events
}

// Rereference subtracts the per-sample mean of the named reference channels
// from every channel. The input is not modified.
func Rereference(signal [][]float64, channels, refs []string) ([][]float64, error) {
	if len(refs) == 0 {
		return signal, nil
	}
	if len(channels) != len(signal) {
		return nil, fmt.Errorf("%w: %d channel names for %d rows", ErrEpoching, len(channels), len(signal))
	}
	index := make(map[string]int, len(channels))
	for i, ch := range channels {
		index[ch] = i
	}
	refRows := make([][]float64, 0, len(refs))
	for _, name := range refs {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: reference channel %q not in montage", ErrEpoching, name)
		}
		refRows = append(refRows, signal[i])
	}

	samples := len(signal[0])
	for i, row := range signal {
		if len(row) != samples {
			return nil, fmt.Errorf("%w: channel %d has %d samples, expected %d", ErrEpoching, i, len(row), samples)
		}
	}
	ref := make([]float64, samples)
	for _, row := range refRows {
		floats.Add(ref, row)
	}
	floats.Scale(1/float64(len(refRows)), ref)

	out := make([][]float64, len(signal))
	for i, row := range signal {
		out[i] = make([]float64, samples)
		floats.SubTo(out[i], row, ref)
	}
	return out, nil
}

// Extract builds one epoch per event whose code is listed in p.EventIDs.
// Epochs whose window falls outside the signal are dropped and counted.
func Extract(signal [][]float64, events []model.Event, p Params) (Epochs, error) {
	if p.SamplingRate <= 0 {
		return Epochs{}, fmt.Errorf("%w: sampling rate must be > 0", ErrEpoching)
	}
	if p.Window.End <= p.Window.Start {
		return Epochs{}, fmt.Errorf("%w: window end %.3f must be after start %.3f", ErrEpoching, p.Window.End, p.Window.Start)
	}
	if len(signal) == 0 {
		return Epochs{}, fmt.Errorf("%w: signal has no channels", ErrEpoching)
	}
	samples := len(signal[0])
	for i, row := range signal {
		if len(row) != samples {
			return Epochs{}, fmt.Errorf("%w: channel %d has %d samples, expected %d", ErrEpoching, i, len(row), samples)
		}
	}

	wanted := make(map[int]struct{}, len(p.EventIDs))
	for _, code := range p.EventIDs {
		wanted[code] = struct{}{}
	}

	start := offset(p.Window.Start, p.SamplingRate)
	n := WindowLength(p.SamplingRate, p.Window)
	bStart := clamp(offset(p.Baseline.Start, p.SamplingRate)-start, 0, n-1)
	bEnd := clamp(offset(p.Baseline.End, p.SamplingRate)-start, 0, n-1)

	var out Epochs
	for _, ev := range events {
		if _, ok := wanted[ev.Code]; !ok {
			continue
		}
		s0 := ev.Sample + start
		if s0 < 0 || s0+n > samples {
			out.Dropped++
			continue
		}
		ep := make([][]float64, len(signal))
		for c, row := range signal {
			win := make([]float64, n)
			copy(win, row[s0:s0+n])
			mean := stat.Mean(win[bStart:bEnd+1], nil)
			floats.AddConst(-mean, win)
			ep[c] = win
		}
		out.Data = append(out.Data, ep)
		out.Events = append(out.Events, ev)
	}
	if out.Len() == 0 {
		return Epochs{}, fmt.Errorf("%w: no epochs within the recording (%d dropped)", ErrEpoching, out.Dropped)
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
