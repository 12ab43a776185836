package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Code", "Score", "Class"}
	rows := [][]string{
		{"1", "0.2500", "12"},
		{"<sync>", "0.7500", "3"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Code    Score Class" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "1      0.2500    12" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "<sync> 0.7500     3" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestDisplayWidthCountsWideRunes(t *testing.T) {
	if got := displayWidth("uV"); got != 2 {
		t.Fatalf("expected width 2, got %d", got)
	}
	if got := displayWidth("脑"); got != 2 {
		t.Fatalf("expected width 2 for a wide rune, got %d", got)
	}
}
