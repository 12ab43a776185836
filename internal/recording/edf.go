// Package recording reads and writes board recordings as EDF files and
// BrainFlow tab-separated files.
package recording

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/model"
)

// ErrEmptyRecording reports a recording without rows or samples.
var ErrEmptyRecording = errors.New("recording is empty")

const (
	digitalMin = math.MinInt16
	digitalMax = math.MaxInt16
	// headerLimit is the largest magnitude a physical bound can have and
	// still fit the eight character header field.
	headerLimit = 9999999
	readChunk   = 4096
)

// WriteEDF writes rec with one-second data records. The last record is
// zero padded. The trigger row is stored losslessly.
func WriteEDF(w io.WriteSeeker, rec model.Recording, device int, start time.Time) error {
	l, err := layout.Lookup(device)
	if err != nil {
		return err
	}
	if len(rec.Rows) == 0 || rec.Samples() == 0 {
		return ErrEmptyRecording
	}
	perRecord := int(l.SamplingRate)
	samples := rec.Samples()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X X",
		RecordingID:        fmt.Sprintf("Startdate X X %s", l.Name),
		StartTime:          start,
		DataRecordDuration: time.Second,
		SignalCount:        len(rec.Rows),
		Signals:            make([]edf.Signal, len(rec.Rows)),
	}
	for i, row := range rec.Rows {
		if len(row) != samples {
			return fmt.Errorf("row %d has %d samples, expected %d", i, len(row), samples)
		}
		sig, err := signalFor(l, i, len(rec.Rows), row)
		if err != nil {
			return err
		}
		sig.SamplesPerRecord = perRecord
		hdr.Signals[i] = sig
	}

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return fmt.Errorf("failed to create edf: %w", err)
	}
	signals := make([][]float64, len(rec.Rows))
	for off := 0; off < samples; off += perRecord {
		for i, row := range rec.Rows {
			chunk := make([]float64, perRecord)
			copy(chunk, row[off:min(off+perRecord, samples)])
			if off+perRecord > samples {
				fill := padValue(hdr.Signals[i])
				for j := samples - off; j < perRecord; j++ {
					chunk[j] = fill
				}
			}
			signals[i] = chunk
		}
		if err := ew.WriteRecord(signals); err != nil {
			return fmt.Errorf("failed to write edf record: %w", err)
		}
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("failed to finalize edf: %w", err)
	}
	return nil
}

func signalFor(l layout.Layout, row, rows int, values []float64) (edf.Signal, error) {
	sig := edf.Signal{
		Label:      fmt.Sprintf("Row %d", row),
		DigitalMin: digitalMin,
		DigitalMax: digitalMax,
	}
	if row == rows-1 {
		sig.Label = "Trigger"
		sig.PhysicalMin = digitalMin
		sig.PhysicalMax = digitalMax
		return sig, nil
	}
	if row >= l.EEGStart && row < l.EEGEnd {
		sig.Label = "EEG " + l.Channels[row-l.EEGStart]
		sig.TransducerType = "EEG electrode"
		sig.PhysicalDimension = "uV"
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	sig.PhysicalMin = math.Floor(lo) - 1
	sig.PhysicalMax = math.Ceil(hi) + 1
	if sig.PhysicalMin < -headerLimit || sig.PhysicalMax > headerLimit {
		return edf.Signal{}, fmt.Errorf("row %d range %.0f..%.0f does not fit an edf header", row, lo, hi)
	}
	return sig, nil
}

// padValue returns the physical value closest to zero inside the signal range.
func padValue(sig edf.Signal) float64 {
	return math.Max(sig.PhysicalMin, math.Min(0, sig.PhysicalMax))
}

// LoadEDF reads every signal of an EDF file into recording rows in file
// order. Trigger codes in the last row are rounded to integers.
func LoadEDF(r io.ReadSeeker) (model.Recording, error) {
	er, err := edf.Open(r)
	if err != nil {
		return model.Recording{}, fmt.Errorf("failed to open edf: %w", err)
	}
	var rows [][]float64
	for i := 0; ; i++ {
		sr, err := er.Signal(i)
		if err != nil {
			break
		}
		row, err := readSignal(sr)
		if err != nil {
			return model.Recording{}, fmt.Errorf("failed to read signal %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return model.Recording{}, ErrEmptyRecording
	}
	trigger := rows[len(rows)-1]
	for i, v := range trigger {
		trigger[i] = math.Round(v)
	}
	return model.Recording{Rows: rows}, nil
}

func readSignal(sr *edf.SignalReader) ([]float64, error) {
	var out []float64
	buf := make([]float64, readChunk)
	for {
		n, err := sr.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
