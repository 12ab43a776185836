// Package synth builds deterministic synthetic oddball recordings.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/model"
)

// SentinelMarker is written at the start and end of a recording when
// Params.Sentinels is set.
const SentinelMarker = 99

// Params shapes a synthetic recording. Amplitudes are in microvolts.
type Params struct {
	Sequence  []int   // stimulus codes of one cycle, presented in order
	Attended  int     // code whose presentations evoke a response
	Cycles    int     // sequence repetitions
	ISI       float64 // seconds between stimulus onsets
	Lead      float64 // seconds before the first stimulus
	Tail      float64 // seconds after the last stimulus
	Amplitude float64 // peak of the evoked response
	Latency   float64 // seconds from onset to the response peak
	Width     float64 // standard deviation of the response in seconds
	Noise     float64 // standard deviation of the background noise
	Sentinels bool
}

// DefaultParams returns a four-stimulus paradigm attending code 1.
func DefaultParams() Params {
	return Params{
		Sequence:  []int{1, 2, 3, 4},
		Attended:  1,
		Cycles:    20,
		ISI:       0.8,
		Lead:      0.5,
		Tail:      1,
		Amplitude: 20,
		Latency:   0.3,
		Width:     0.05,
		Noise:     1,
	}
}

// Generator produces recordings from a seeded source.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Recording renders a recording laid out like the given board: rows below
// the EEG band carry a sample counter and the last row is the trigger.
func (g *Generator) Recording(device int, p Params) (model.Recording, error) {
	l, err := layout.Lookup(device)
	if err != nil {
		return model.Recording{}, err
	}
	if len(p.Sequence) == 0 || p.Cycles <= 0 {
		return model.Recording{}, fmt.Errorf("synthetic recording needs a sequence and at least one cycle")
	}
	if p.ISI <= 0 {
		return model.Recording{}, fmt.Errorf("inter-stimulus interval must be > 0, got %v", p.ISI)
	}
	fs := l.SamplingRate
	stimuli := len(p.Sequence) * p.Cycles
	samples := int(math.Ceil((p.Lead + float64(stimuli)*p.ISI + p.Tail) * fs))

	rows := make([][]float64, l.EEGEnd+1)
	for r := range rows {
		rows[r] = make([]float64, samples)
	}
	for i := 0; i < l.EEGStart; i++ {
		for s := range rows[i] {
			rows[i][s] = float64(s % 256)
		}
	}
	for c := l.EEGStart; c < l.EEGEnd; c++ {
		for s := range rows[c] {
			rows[c][s] = g.rnd.NormFloat64() * p.Noise
		}
	}

	trigger := rows[len(rows)-1]
	onsets := make([]int, 0, stimuli)
	for i := 0; i < stimuli; i++ {
		onset := int(math.Round((p.Lead + float64(i)*p.ISI) * fs))
		code := p.Sequence[i%len(p.Sequence)]
		trigger[onset] = float64(code)
		onsets = append(onsets, onset)
		if code == p.Attended {
			g.evoke(rows[l.EEGStart:l.EEGEnd], onset, fs, p)
		}
	}
	if p.Sentinels {
		trigger[0] = SentinelMarker
		trigger[samples-1] = SentinelMarker
	}
	return model.Recording{Rows: rows}, nil
}

// evoke adds a gaussian deflection peaking Latency seconds after onset.
// Channel gain falls off with the channel index.
func (g *Generator) evoke(eeg [][]float64, onset int, fs float64, p Params) {
	peak := float64(onset) + p.Latency*fs
	width := p.Width * fs
	span := int(math.Ceil(4 * width))
	for c, row := range eeg {
		gain := 1 / (1 + 0.1*float64(c))
		for s := int(peak) - span; s <= int(peak)+span; s++ {
			if s < 0 || s >= len(row) {
				continue
			}
			d := (float64(s) - peak) / width
			row[s] += gain * p.Amplitude * math.Exp(-0.5*d*d)
		}
	}
}
