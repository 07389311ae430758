// Package report prints the human-facing narration of commands and
// scenarios. Structured logs go through pkg/logger; this is the console.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Reporter writes styled status lines. Colours are dropped automatically
// when the writer is not a terminal.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer

	title lipgloss.Style
	step  lipgloss.Style
	ok    lipgloss.Style
	skip  lipgloss.Style
	fail  lipgloss.Style
	info  lipgloss.Style
	key   lipgloss.Style
}

// New creates a Reporter writing to out, stdout when nil.
func New(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	r := lipgloss.NewRenderer(out)
	return &Reporter{
		out:   out,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		step:  r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("green")),
		skip:  r.NewStyle().Foreground(lipgloss.Color("240")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("red")),
		info:  r.NewStyle().Foreground(lipgloss.Color("yellow")),
		key:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Discard returns a Reporter that prints nothing.
func Discard() *Reporter { return New(io.Discard) }

func (r *Reporter) emit(style func(*Reporter) lipgloss.Style, prefix, format string, args ...any) {
	if r == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, style(r).Render(prefix+msg))
}

// Title opens a scenario or command section.
func (r *Reporter) Title(format string, args ...any) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.title }, "\n=== ", format, args...)
}

func (r *Reporter) Step(index, total int, name string) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.step }, "", "[%d/%d] %s", index, total, name)
}

// OK reports a confirmed mutation.
func (r *Reporter) OK(format string, args ...any) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.ok }, "✓ ", format, args...)
}

// Skip reports a postcondition that already held.
func (r *Reporter) Skip(format string, args ...any) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.skip }, "· ", format, args...)
}

func (r *Reporter) Fail(format string, args ...any) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.fail }, "✗ ", format, args...)
}

func (r *Reporter) Info(format string, args ...any) {
	r.emit(func(r *Reporter) lipgloss.Style { return r.info }, "  ", format, args...)
}

// KV prints an aligned key/value pair, used for --log output.
func (r *Reporter) KV(key string, value any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "  %s %v\n", r.key.Render(fmt.Sprintf("%-22s", key+":")), value)
}

// Table prints rows of columns separated by two spaces.
func (r *Reporter) Table(header []string, rows [][]string) {
	if r == nil {
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := range header {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}
	format := func(cols []string) string {
		parts := make([]string, len(header))
		for i := range header {
			var v string
			if i < len(cols) {
				v = cols[i]
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.step.Render(format(header)))
	for _, row := range rows {
		fmt.Fprintln(r.out, format(row))
	}
}
