package parser

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/svelte"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Grammar binds an LSP language id to a tree-sitter grammar.
type Grammar struct {
	ID         string
	Extensions []string
	Language   func() *sitter.Language
}

var grammars = []Grammar{
	{ID: "go", Extensions: []string{".go"}, Language: golang.GetLanguage},
	{ID: "java", Extensions: []string{".java"}, Language: java.GetLanguage},
	{ID: "javascript", Extensions: []string{".js", ".mjs", ".cjs", ".jsx"}, Language: javascript.GetLanguage},
	{ID: "python", Extensions: []string{".py", ".pyi"}, Language: python.GetLanguage},
	{ID: "svelte", Extensions: []string{".svelte"}, Language: svelte.GetLanguage},
	{ID: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, Language: typescript.GetLanguage},
	{ID: "typescriptreact", Extensions: []string{".tsx"}, Language: tsx.GetLanguage},
}

var (
	byID        = make(map[string]*Grammar)
	byExtension = make(map[string]string)
)

func init() {
	for i := range grammars {
		g := &grammars[i]
		byID[g.ID] = g
		for _, ext := range g.Extensions {
			byExtension[ext] = g.ID
		}
	}
}

// Lookup returns the grammar registered for a language id.
func Lookup(languageID string) (*Grammar, bool) {
	g, ok := byID[languageID]
	return g, ok
}

// Supported lists the registered language ids in sorted order.
func Supported() []string {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LanguageForPath guesses the language id from a file extension. overrides
// maps extensions (with leading dot) to ids and wins over the built-in table.
func LanguageForPath(path string, overrides map[string]string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := overrides[ext]; ok {
		return id
	}
	if id, ok := byExtension[ext]; ok {
		return id
	}
	return "plaintext"
}
