package parser_test

import (
	"context"
	"errors"
	"testing"

	"vigil/internal/parser"

	"github.com/stretchr/testify/require"
)

func TestParseValidSource(t *testing.T) {
	pool := parser.NewPool(2)
	defer pool.Close()

	tree, err := pool.Parse(context.Background(), "go", []byte("package main\n\nfunc main() {}\n"))
	require.NoError(t, err)
	defer tree.Close()

	require.Empty(t, tree.SyntaxErrors(0))
}

func TestSyntaxErrors(t *testing.T) {
	pool := parser.NewPool(1)
	defer pool.Close()

	tests := []struct {
		language string
		source   string
	}{
		{"go", "package main\n\nfunc main() {\n"},
		{"python", "def f(:\n    pass\n"},
		{"javascript", "let x = ;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			tree, err := pool.Parse(context.Background(), tt.language, []byte(tt.source))
			require.NoError(t, err)
			defer tree.Close()

			errs := tree.SyntaxErrors(0)
			require.NotEmpty(t, errs)
			require.NotEmpty(t, errs[0].Message())
		})
	}
}

func TestSyntaxErrorLimit(t *testing.T) {
	pool := parser.NewPool(1)
	defer pool.Close()

	src := "let a = ;\nlet b = ;\nlet c = ;\n"
	tree, err := pool.Parse(context.Background(), "javascript", []byte(src))
	require.NoError(t, err)
	defer tree.Close()

	require.Len(t, tree.SyntaxErrors(1), 1)
}

func TestQueryMatches(t *testing.T) {
	pool := parser.NewPool(1)
	defer pool.Close()

	src := "package main\n\nfunc main() {\n\tpanic(1)\n\tprintln(2)\n}\n"
	tree, err := pool.Parse(context.Background(), "go", []byte(src))
	require.NoError(t, err)
	defer tree.Close()

	q, err := parser.CompileQuery("go", `(call_expression function: (identifier) @match (#eq? @match "panic"))`)
	require.NoError(t, err)
	defer q.Close()

	matches := tree.Query(q)
	require.Len(t, matches, 1)
	require.Equal(t, "panic", matches[0].Content)
	require.Equal(t, uint32(3), matches[0].Start.Row)
	require.Equal(t, uint32(1), matches[0].Start.Column)
}

func TestUnsupportedLanguage(t *testing.T) {
	pool := parser.NewPool(1)
	defer pool.Close()

	_, err := pool.Parse(context.Background(), "cobol", []byte("IDENTIFICATION DIVISION."))
	require.True(t, errors.Is(err, parser.ErrUnsupportedLanguage))

	_, err = parser.CompileQuery("cobol", "(x) @match")
	require.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}

func TestBadQuery(t *testing.T) {
	_, err := parser.CompileQuery("go", "(not_a_node_type) @match")
	require.Error(t, err)
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path      string
		overrides map[string]string
		want      string
	}{
		{"main.go", nil, "go"},
		{"app/Main.JAVA", nil, "java"},
		{"ui/App.tsx", nil, "typescriptreact"},
		{"notes.txt", nil, "plaintext"},
		{"build.jsx", map[string]string{".jsx": "javascriptreact"}, "javascriptreact"},
	}
	for _, tt := range tests {
		if got := parser.LanguageForPath(tt.path, tt.overrides); got != tt.want {
			t.Errorf("LanguageForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSupported(t *testing.T) {
	ids := parser.Supported()
	require.Contains(t, ids, "go")
	require.Contains(t, ids, "python")
	require.IsIncreasing(t, ids)
}
