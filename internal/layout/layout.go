// Package layout describes the channel layout of supported acquisition boards.
package layout

import (
	"errors"
	"fmt"
	"sort"
)

// Board identifiers follow BrainFlow board ids.
const (
	Synthetic = -1
	Cyton     = 0
	Unicorn   = 8
	Enophone  = 37
)

// ErrUnknownDevice reports a board id with no known layout.
var ErrUnknownDevice = errors.New("unknown device")

// Layout locates the EEG band inside a board's data rows.
type Layout struct {
	Name         string
	SamplingRate float64
	EEGStart     int // first EEG row, inclusive
	EEGEnd       int // last EEG row, exclusive
	Channels     []string
	Reference    []string // channels whose mean is subtracted from every channel
}

// ChannelCount returns the number of EEG rows.
func (l Layout) ChannelCount() int {
	return l.EEGEnd - l.EEGStart
}

var layouts = map[int]Layout{
	Synthetic: {
		Name:         "synthetic",
		SamplingRate: 250,
		EEGStart:     1,
		EEGEnd:       17,
		Channels: []string{
			"Fz", "C3", "Cz", "C4", "Pz", "PO7", "Oz", "PO8",
			"F5", "F7", "F3", "F1", "F2", "F4", "F6", "F8",
		},
	},
	Cyton: {
		Name:         "cyton",
		SamplingRate: 250,
		EEGStart:     1,
		EEGEnd:       9,
		Channels:     []string{"Fp1", "Fp2", "C3", "C4", "P7", "P8", "O1", "O2"},
	},
	Unicorn: {
		Name:         "unicorn",
		SamplingRate: 250,
		EEGStart:     0,
		EEGEnd:       8,
		Channels:     []string{"Fz", "C3", "Cz", "C4", "Pz", "PO7", "Oz", "PO8"},
	},
	Enophone: {
		Name:         "enophone",
		SamplingRate: 250,
		EEGStart:     1,
		EEGEnd:       5,
		Channels:     []string{"A1", "C3", "C4", "A2"},
		Reference:    []string{"C3", "C4"},
	},
}

// Lookup returns the layout of a board. The returned slices are copies.
func Lookup(device int) (Layout, error) {
	l, ok := layouts[device]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d", ErrUnknownDevice, device)
	}
	l.Channels = append([]string(nil), l.Channels...)
	l.Reference = append([]string(nil), l.Reference...)
	return l, nil
}

// Devices returns the known board ids in ascending order.
func Devices() []int {
	ids := make([]int, 0, len(layouts))
	for id := range layouts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Select returns the indexes of names within channels.
func Select(channels, names []string) ([]int, error) {
	index := make(map[string]int, len(channels))
	for i, ch := range channels {
		index[ch] = i
	}
	out := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", name)
		}
		out = append(out, i)
	}
	return out, nil
}
