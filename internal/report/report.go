// Package report prints markers for terminals and logs.
package report

import (
	"fmt"
	"io"
	"sync"

	"vigil/internal/diagnostics"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgBlue)
	hintColor    = color.New(color.FgCyan)
	pathColor    = color.New(color.Bold)
	codeColor    = color.New(color.Faint)
)

func severityColor(s diagnostics.Severity) *color.Color {
	switch s {
	case diagnostics.SeverityError:
		return errorColor
	case diagnostics.SeverityWarning:
		return warningColor
	case diagnostics.SeverityInformation:
		return infoColor
	default:
		return hintColor
	}
}

// Printer writes one line per marker as path:line:col: severity: message [code].
// Lines and columns are one-based. Safe for concurrent use.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	errors   int
	warnings int
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Format renders a single marker.
func Format(path string, m diagnostics.Marker) string {
	line := fmt.Sprintf("%s:%d:%d: %s: %s",
		pathColor.Sprint(path),
		m.Range.Start.Line+1,
		m.Range.Start.Character+1,
		severityColor(m.Severity).Sprint(m.Severity),
		m.Message,
	)
	if m.Code != "" {
		line += " " + codeColor.Sprintf("[%s]", m.Code)
	}
	return line
}

// Print writes the markers of one document.
func (p *Printer) Print(path string, markers []diagnostics.Marker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range markers {
		fmt.Fprintln(p.out, Format(path, m))
		switch m.Severity {
		case diagnostics.SeverityError:
			p.errors++
		case diagnostics.SeverityWarning:
			p.warnings++
		}
	}
}

// Counts returns the number of errors and warnings printed so far.
func (p *Printer) Counts() (errors, warnings int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors, p.warnings
}

// Summary writes the totals line.
func (p *Printer) Summary(files int) {
	errs, warns := p.Counts()
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%d file(s) checked: %s, %s\n",
		files,
		errorColor.Sprintf("%d error(s)", errs),
		warningColor.Sprintf("%d warning(s)", warns),
	)
}
