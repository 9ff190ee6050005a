package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		require.NoError(t, rootCmd.PersistentFlags().Set("config", ""))
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCheckClean(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.go", "package ok\n")

	out, err := execute(t, "check", ok)
	require.NoError(t, err)
	require.Contains(t, out, "1 file(s) checked: 0 error(s), 0 warning(s)")
}

func TestCheckReportsErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.py", "def f(:\n")

	out, err := execute(t, "check", bad)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(out, bad+":"), out)
	require.Contains(t, out, "error:")
}

func TestCheckWithConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "vigil.toml", `
[[rules]]
id = "no-panic"
language = "go"
query = '(call_expression function: (identifier) @match (#eq? @match "panic"))'
message = "avoid panic"
severity = "warning"
`)
	src := writeFile(t, dir, "main.go", "package main\n\nfunc main() {\n\tpanic(1)\n}\n")

	out, err := execute(t, "--config", cfg, "check", src)
	require.NoError(t, err)
	require.Contains(t, out, src+":4:2: warning: avoid panic [no-panic]")
	require.Contains(t, out, "0 error(s), 1 warning(s)")
}

func TestWatchOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc a() {\n")
	writeFile(t, dir, "b.go", "package b\n")

	out, err := execute(t, "watch", "--once", dir)
	require.Error(t, err)
	require.Contains(t, out, "a.go:")
	require.NotContains(t, out, "b.go:")
	require.Contains(t, out, "2 file(s) checked")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "vigil")
}
