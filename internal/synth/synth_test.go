package synth

import (
	"testing"

	"github.com/verte-zerg/oddball/internal/epoch"
	"github.com/verte-zerg/oddball/internal/layout"
)

func TestRecordingLayoutAndMarkers(t *testing.T) {
	p := DefaultParams()
	p.Cycles = 3
	p.Sentinels = true
	rec, err := New(1).Recording(layout.Synthetic, p)
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	l, _ := layout.Lookup(layout.Synthetic)
	if len(rec.Rows) != l.EEGEnd+1 {
		t.Fatalf("expected %d rows, got %d", l.EEGEnd+1, len(rec.Rows))
	}
	events := epoch.FindEvents(rec.Trigger())
	if len(events) != 3*len(p.Sequence)+2 {
		t.Fatalf("expected %d events, got %d", 3*len(p.Sequence)+2, len(events))
	}
	if events[0].Code != SentinelMarker || events[len(events)-1].Code != SentinelMarker {
		t.Fatalf("expected sentinel markers at both ends, got %+v", events)
	}
	for i, e := range events[1 : len(events)-1] {
		if e.Code != p.Sequence[i%len(p.Sequence)] {
			t.Fatalf("event %d: expected code %d, got %d", i, p.Sequence[i%len(p.Sequence)], e.Code)
		}
	}
}

func TestRecordingIsDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Cycles = 1
	a, _ := New(7).Recording(layout.Unicorn, p)
	b, _ := New(7).Recording(layout.Unicorn, p)
	for r := range a.Rows {
		for s := range a.Rows[r] {
			if a.Rows[r][s] != b.Rows[r][s] {
				t.Fatalf("row %d sample %d differs", r, s)
			}
		}
	}
}

func TestRecordingEvokesAttendedStimulus(t *testing.T) {
	p := DefaultParams()
	p.Cycles = 1
	p.Noise = 0
	p.Attended = 2
	rec, err := New(1).Recording(layout.Synthetic, p)
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	events := epoch.FindEvents(rec.Trigger())
	peak := int(p.Latency * 250)
	for _, e := range events {
		v := rec.Rows[1][e.Sample+peak]
		if e.Code == 2 && v < p.Amplitude*0.9 {
			t.Fatalf("attended stimulus response %v too small", v)
		}
		if e.Code != 2 && v > 1e-6 {
			t.Fatalf("unattended stimulus %d has response %v", e.Code, v)
		}
	}
}

func TestRecordingErrors(t *testing.T) {
	p := DefaultParams()
	p.Sequence = nil
	if _, err := New(1).Recording(layout.Synthetic, p); err == nil {
		t.Fatalf("expected error for empty sequence")
	}
	if _, err := New(1).Recording(4242, DefaultParams()); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}
