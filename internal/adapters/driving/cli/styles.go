package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Width(22)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
)

// printer writes report lines, styled when the output is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) *printer {
	f, ok := w.(*os.File)
	return &printer{w: w, styled: ok && term.IsTerminal(int(f.Fd()))}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) title(s string) {
	_, _ = io.WriteString(p.w, p.render(titleStyle, s)+"\n")
}

func (p *printer) field(label string, value any) {
	if p.styled {
		_, _ = io.WriteString(p.w, labelStyle.Render(label)+" "+fmt.Sprint(value)+"\n")
		return
	}
	_, _ = io.WriteString(p.w, "  "+label+": "+fmt.Sprint(value)+"\n")
}

func (p *printer) success(s string) {
	_, _ = io.WriteString(p.w, p.render(successStyle, s)+"\n")
}

func (p *printer) warn(s string) {
	_, _ = io.WriteString(p.w, p.render(warningStyle, s)+"\n")
}

func (p *printer) fail(s string) {
	_, _ = io.WriteString(p.w, p.render(errorStyle, s)+"\n")
}

func (p *printer) blank() {
	_, _ = io.WriteString(p.w, "\n")
}
