package sitteradapter_test

import (
	"testing"

	"vigil/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

func TestOffset(t *testing.T) {
	doc := "ab\nçd😀x\nlast"
	l := sitteradapter.NewLines(doc)
	require.Equal(t, 3, l.Count())

	tests := []struct {
		name   string
		pos    protocol.Position
		offset int
		point  sitter.Point
	}{
		{"start", pos(0, 0), 0, sitter.Point{Row: 0, Column: 0}},
		{"second line", pos(1, 0), 3, sitter.Point{Row: 1, Column: 0}},
		{"after two byte rune", pos(1, 1), 5, sitter.Point{Row: 1, Column: 2}},
		{"after surrogate pair", pos(1, 4), 10, sitter.Point{Row: 1, Column: 7}},
		{"past line end", pos(1, 99), 11, sitter.Point{Row: 1, Column: 8}},
		{"past last line", pos(9, 2), 14, sitter.Point{Row: 2, Column: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, point := l.Offset(tt.pos)
			require.Equal(t, tt.offset, offset)
			require.Equal(t, tt.point, point)
		})
	}
}

func TestPositionRoundTrip(t *testing.T) {
	l := sitteradapter.NewLines("ab\nçd😀x\n")
	_, point := l.Offset(pos(1, 4))
	require.Equal(t, pos(1, 4), l.Position(point))
	require.Equal(t, pos(0, 2), l.Position(sitter.Point{Row: 0, Column: 40}))
}

func TestApplyChanges(t *testing.T) {
	doc := "hello\nworld\n"
	changes := []any{
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{Start: pos(1, 0), End: pos(1, 5)},
			Text:  "there",
		},
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{Start: pos(0, 5), End: pos(0, 5)},
			Text:  ",",
		},
	}
	require.Equal(t, "hello,\nthere\n", sitteradapter.ApplyChanges(doc, changes))

	whole := []any{protocol.TextDocumentContentChangeEventWhole{Text: "new"}}
	require.Equal(t, "new", sitteradapter.ApplyChanges(doc, whole))
}

func TestEditInput(t *testing.T) {
	l := sitteradapter.NewLines("abc\ndef")
	edit := l.EditInput(protocol.Range{Start: pos(0, 1), End: pos(1, 1)}, "X\nYZ")
	require.Equal(t, uint32(1), edit.StartIndex)
	require.Equal(t, uint32(5), edit.OldEndIndex)
	require.Equal(t, uint32(5), edit.NewEndIndex)
	require.Equal(t, sitter.Point{Row: 1, Column: 2}, edit.NewEndPoint)
}
