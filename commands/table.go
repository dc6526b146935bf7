package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattsolo1/han-bridge/internal/utils"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// table renders rows as left-aligned columns. Cells may carry ANSI styling.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) Render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			if i < len(cells)-1 {
				cell = utils.PadStr(cell, widths[i])
			}
			parts[i] = cell
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(t.headers, &headerStyle)
	for _, row := range t.rows {
		line(row, nil)
	}
}

func statusCell(passed bool) string {
	if passed {
		return passStyle.Render("passed")
	}
	return failStyle.Render("failed")
}
