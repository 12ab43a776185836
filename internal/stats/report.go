package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/model"
)

const (
	sparkChars = " .:-=+*#%@"
	barWidth   = 20
)

var (
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#52C41A"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// ShouldUseColor reports whether w is a terminal and NO_COLOR is unset.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func styled(style lipgloss.Style, text string, useColor bool) string {
	if !useColor {
		return text
	}
	return style.Render(text)
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// FormatSequence joins codes with commas.
func FormatSequence(seq []int) string {
	parts := make([]string, len(seq))
	for i, c := range seq {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// RenderTrainingRun prints the outcome of a training pass.
func RenderTrainingRun(w io.Writer, run model.TrainingRun, useColor bool) error {
	lines := []string{
		styled(headingStyle, "Training run "+run.ID, useColor),
		fmt.Sprintf("Model: %s", run.Model),
		fmt.Sprintf("Device: %d", run.Device),
		fmt.Sprintf("Target code: %d", run.TrainingClass),
		fmt.Sprintf("Sequence: %s", FormatSequence(run.Sequence)),
		fmt.Sprintf("Dataset: %d epochs x %d features", run.Samples, run.Features),
	}
	switch {
	case run.CV != nil:
		lines = append(lines,
			fmt.Sprintf("CV accuracy (%d folds): %.2f +/- %.2f  [%s]", run.CV.Folds, run.CV.AccuracyMean, run.CV.AccuracyStd, Sparkline(run.CV.Accuracy)),
			fmt.Sprintf("CV F1 (%d folds): %.2f +/- %.2f  [%s]", run.CV.Folds, run.CV.F1Mean, run.CV.F1Std, Sparkline(run.CV.F1)),
		)
	case run.CVError != "":
		lines = append(lines, styled(failureStyle, "Cross-validation failed: "+run.CVError, useColor))
	}
	lines = append(lines,
		fmt.Sprintf("Eval accuracy: %.2f", run.EvalAccuracy),
		fmt.Sprintf("Eval F1: %.2f", run.EvalF1),
		"",
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRuns prints stored training runs in the given order.
func RenderRuns(w io.Writer, runs []model.TrainingRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No training runs found.")
		return err
	}
	headers := []string{"Started", "Run", "Model", "Device", "Sequence", "CV Acc", "Eval Acc", "Eval F1"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		cv := "-"
		if r.CV != nil {
			cv = fmt.Sprintf("%.2f", r.CV.AccuracyMean)
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			id,
			r.Model,
			strconv.Itoa(r.Device),
			FormatSequence(r.Sequence),
			cv,
			fmt.Sprintf("%.2f", r.EvalAccuracy),
			fmt.Sprintf("%.2f", r.EvalF1),
		})
	}
	rightAlign := map[int]bool{3: true, 5: true, 6: true, 7: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderDecision prints the normalized score of every stimulus and marks the
// selected one.
func RenderDecision(w io.Writer, d model.Decision, useColor bool) error {
	if _, err := fmt.Fprintln(w, styled(headingStyle, fmt.Sprintf("Decision: class %d (code %d)", d.Class, d.Code), useColor)); err != nil {
		return err
	}
	codes := append([]int(nil), d.Sequence...)
	if len(codes) == 0 {
		for code := range d.Scores {
			codes = append(codes, code)
		}
		sort.Ints(codes)
	}
	headers := []string{"Class", "Code", "Score", ""}
	rows := make([][]string, 0, len(codes))
	for i, code := range codes {
		score := d.Scores[code]
		bar := strings.Repeat("#", int(math.Round(clamp01(score)*barWidth)))
		if i+1 == d.Class {
			bar = styled(selectedStyle, bar+" <", useColor)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(code),
			fmt.Sprintf("%.4f", score),
			bar,
		})
	}
	rightAlign := map[int]bool{0: true, 1: true, 2: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderDevices prints the channel layout of every known board.
func RenderDevices(w io.Writer) error {
	headers := []string{"Id", "Board", "Rate", "EEG rows", "Channels", "Reference"}
	var rows [][]string
	for _, id := range layout.Devices() {
		l, err := layout.Lookup(id)
		if err != nil {
			return err
		}
		ref := "-"
		if len(l.Reference) > 0 {
			ref = strings.Join(l.Reference, ",")
		}
		rows = append(rows, []string{
			strconv.Itoa(id),
			l.Name,
			fmt.Sprintf("%.0f Hz", l.SamplingRate),
			fmt.Sprintf("%d-%d", l.EEGStart, l.EEGEnd-1),
			strings.Join(l.Channels, ","),
			ref,
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{0: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
