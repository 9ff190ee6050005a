package report_test

import (
	"bytes"
	"testing"

	"vigil/internal/diagnostics"
	"vigil/internal/report"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func marker(line, char uint32, sev diagnostics.Severity, msg, code string) diagnostics.Marker {
	return diagnostics.Marker{
		Range:    diagnostics.Range{Start: diagnostics.Position{Line: line, Character: char}},
		Severity: sev,
		Message:  msg,
		Code:     code,
	}
}

func TestFormat(t *testing.T) {
	got := report.Format("main.go", marker(3, 1, diagnostics.SeverityWarning, "avoid panic", "no-panic"))
	require.Equal(t, "main.go:4:2: warning: avoid panic [no-panic]", got)

	got = report.Format("main.go", marker(0, 0, diagnostics.SeverityError, "missing }", ""))
	require.Equal(t, "main.go:1:1: error: missing }", got)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := report.NewPrinter(&buf)
	p.Print("a.go", []diagnostics.Marker{
		marker(0, 0, diagnostics.SeverityError, "bad", "syntax"),
		marker(1, 0, diagnostics.SeverityWarning, "meh", "lint"),
		marker(2, 0, diagnostics.SeverityHint, "psst", ""),
	})
	p.Summary(1)

	require.Equal(t, "a.go:1:1: error: bad [syntax]\n"+
		"a.go:2:1: warning: meh [lint]\n"+
		"a.go:3:1: hint: psst\n"+
		"1 file(s) checked: 1 error(s), 1 warning(s)\n", buf.String())

	errs, warns := p.Counts()
	require.Equal(t, 1, errs)
	require.Equal(t, 1, warns)
}
