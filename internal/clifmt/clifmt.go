// Package clifmt styles command output when it goes to a terminal.
package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Printer writes to w and only emits ANSI colors when w is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

func New(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

func (p *Printer) Headerf(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint("1;36", fmt.Sprintf(format, args...)))
}

func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint("32", fmt.Sprintf(format, args...)))
}

func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint("33", fmt.Sprintf(format, args...)))
}

func (p *Printer) Dim(text string) string { return p.paint("2", text) }

func (p *Printer) Key(text string) string { return p.paint("1;33", text) }

// Table prints rows aligned in columns below a dimmed header.
func (p *Printer) Table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	if len(header) > 0 {
		fmt.Fprintln(tw, p.Dim(strings.Join(header, "\t")))
	}
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func (p *Printer) paint(code, text string) string {
	if !p.color {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
