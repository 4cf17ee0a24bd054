package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"
)

var (
	okColor    = lipgloss.Color("#10B981")
	warnColor  = lipgloss.Color("#F59E0B")
	errorColor = lipgloss.Color("#F87171")
	mutedColor = lipgloss.Color("#9CA3AF")
	titleColor = lipgloss.Color("#A78BFA")
)

// printer writes command output, styled only when w is a terminal.
type printer struct {
	w      io.Writer
	styled bool

	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	p := &printer{w: w, styled: styled}
	p.title = p.style(lipgloss.NewStyle().Bold(true).Foreground(titleColor))
	p.ok = p.style(lipgloss.NewStyle().Foreground(okColor))
	p.warn = p.style(lipgloss.NewStyle().Foreground(warnColor))
	p.err = p.style(lipgloss.NewStyle().Foreground(errorColor))
	p.muted = p.style(lipgloss.NewStyle().Foreground(mutedColor))
	return p
}

func (p *printer) style(s lipgloss.Style) lipgloss.Style {
	if !p.styled {
		return lipgloss.NewStyle()
	}
	return s
}

func (p *printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) Title(s string) {
	p.Printf("%s\n", p.title.Render(s))
}

// Table prints rows as left-aligned columns separated by two spaces. Cells
// may contain styling; widths are measured without escape codes.
func (p *printer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(cell)
			}
			parts[i] = cell + strings.Repeat(" ", max(pad, 0))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	styledHeader := make([]string, len(header))
	for i, h := range header {
		styledHeader[i] = p.muted.Render(h)
	}
	p.Printf("%s\n", line(styledHeader))
	for _, row := range rows {
		p.Printf("%s\n", line(row))
	}
}

// truncate shortens s to width visible columns, keeping escape codes intact.
func truncate(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
