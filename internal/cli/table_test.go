package cli

import (
	"strings"
	"testing"

	"github.com/jmylchreest/swatchwise/internal/colour"
)

func TestNewTable(t *testing.T) {
	table := NewTable([]string{"Hex", "Name", "Season"})

	if len(table.headers) != 3 {
		t.Errorf("Expected 3 headers, got %d", len(table.headers))
	}
	if table.padding != 2 {
		t.Errorf("Expected padding of 2, got %d", table.padding)
	}
	if table.Len() != 0 {
		t.Errorf("Expected no rows, got %d", table.Len())
	}
}

func TestTableAddRow(t *testing.T) {
	table := NewTable([]string{"Hex", "Name"})

	table.AddRow([]string{"#000000", "Black"})
	table.AddRow([]string{"#FFFFFF"})
	table.AddRow([]string{"#FF0000", "Red", "Extra"})

	if table.Len() != 3 {
		t.Fatalf("Expected 3 rows, got %d", table.Len())
	}
	for i, row := range table.rows {
		if len(row) != 2 {
			t.Errorf("Row %d: expected 2 columns, got %d", i, len(row))
		}
	}
	if table.rows[1][1] != "" {
		t.Errorf("Expected empty padded column, got %q", table.rows[1][1])
	}
}

func TestTableRender(t *testing.T) {
	table := NewTable([]string{"Hex", "Name", "Source"})
	table.AddRow([]string{"#000000", "Black", "W3C"})
	table.AddRow([]string{"#FFFFFF", "White", "X11"})

	lines := strings.Split(table.Render(), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected header, separator, 2 rows and a trailing newline, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "-------") {
		t.Errorf("Expected separator line, got %q", lines[1])
	}
	for _, want := range []string{"Black", "White", "W3C", "X11"} {
		if !strings.Contains(lines[2]+lines[3], want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestTableRenderEmpty(t *testing.T) {
	if out := NewTable(nil).Render(); out != "" {
		t.Errorf("Expected empty output for a table without headers, got %q", out)
	}

	out := NewTable([]string{"Hex", "Name"}).Render()
	if lines := strings.Split(out, "\n"); len(lines) != 3 {
		t.Errorf("Expected header and separator only, got %q", out)
	}
}

func TestTableAlignsANSICells(t *testing.T) {
	table := NewTable([]string{"Swatch", "Hex"})
	table.AddRow([]string{colour.ColourPreview(colour.RGB{R: 255}, 4), "#FF0000"})
	table.AddRow([]string{"none", "#000000"})

	lines := strings.Split(table.Render(), "\n")
	for i, line := range lines[:4] {
		if got := visibleLen(line); got != visibleLen(lines[0]) {
			t.Errorf("Line %d: expected visible width %d, got %d", i, visibleLen(lines[0]), got)
		}
	}
	if idx := strings.Index(ansiEscape.ReplaceAllString(lines[2], ""), "#FF0000"); idx != len("Swatch")+2 {
		t.Errorf("Expected hex column at %d, got %d", len("Swatch")+2, idx)
	}
}

func TestTableWrapsPlainCells(t *testing.T) {
	table := NewTable([]string{"Hex", "Names"})
	table.SetColumnMaxWidth(1, 12)
	table.AddRow([]string{"#000000", "Black [W3C] Black [X11]"})

	lines := strings.Split(strings.TrimRight(table.Render(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected the row to wrap onto 2 lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[3], strings.Repeat(" ", len("#000000"))) {
		t.Errorf("Expected continuation line to leave the first column blank, got %q", lines[3])
	}
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		input    string
		width    int
		expected string
	}{
		{"test", 10, "test      "},
		{"hello", 5, "hello"},
		{"world", 3, "world"},
		{"", 5, "     "},
		{"★", 3, "★  "},
		{"\x1b[48;2;0;0;0m  \x1b[0m", 4, "\x1b[48;2;0;0;0m  \x1b[0m  "},
	}

	for _, tt := range tests {
		if got := padRight(tt.input, tt.width); got != tt.expected {
			t.Errorf("padRight(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
		}
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "Black", 10, []string{"Black"}},
		{"words", "Bright Winter Dark Winter", 13, []string{"Bright Winter", "Dark Winter"}},
		{"long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"no limit", "anything at all", 0, []string{"anything at all"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
