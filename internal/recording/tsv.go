package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/oddball/internal/model"
)

// LoadTSV reads a BrainFlow data file: one line per sample, one
// tab-separated column per board row.
func LoadTSV(r io.Reader) (model.Recording, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.ReuseRecord = true

	var rows [][]float64
	line := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Recording{}, fmt.Errorf("failed to read line %d: %w", line+1, err)
		}
		line++
		if rows == nil {
			rows = make([][]float64, len(fields))
		}
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return model.Recording{}, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			rows[i] = append(rows[i], v)
		}
	}
	if len(rows) == 0 {
		return model.Recording{}, ErrEmptyRecording
	}
	return model.Recording{Rows: rows}, nil
}

// WriteTSV writes rec in the BrainFlow data file layout.
func WriteTSV(w io.Writer, rec model.Recording) error {
	if len(rec.Rows) == 0 || rec.Samples() == 0 {
		return ErrEmptyRecording
	}
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	fields := make([]string, len(rec.Rows))
	for s := 0; s < rec.Samples(); s++ {
		for i, row := range rec.Rows {
			if s >= len(row) {
				return fmt.Errorf("row %d has %d samples, expected %d", i, len(row), rec.Samples())
			}
			fields[i] = strconv.FormatFloat(row[s], 'f', 6, 64)
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load reads a recording file, choosing the format by extension. Files
// other than .edf are read as BrainFlow data files.
func Load(path string) (model.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Recording{}, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort file close.
			_ = cerr
		}
	}()
	if isEDF(path) {
		return LoadEDF(f)
	}
	return LoadTSV(f)
}

// Save writes a recording file, choosing the format by extension.
func Save(path string, rec model.Recording, device int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if isEDF(path) {
		return WriteEDF(f, rec, device, time.Now())
	}
	return WriteTSV(f, rec)
}

func isEDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".edf")
}
