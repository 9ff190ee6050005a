// Package sitteradapter converts between LSP positions, which count UTF-16
// code units, and the byte offsets and points used by tree-sitter.
package sitteradapter

import (
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Lines indexes the start offset of every line of a document.
type Lines struct {
	text   string
	starts []int
}

func NewLines(text string) *Lines {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{text: text, starts: starts}
}

func (l *Lines) Count() int {
	return len(l.starts)
}

// line returns line n without its terminator. n is clamped to the last line.
func (l *Lines) line(n int) (string, int) {
	if n >= len(l.starts) {
		n = len(l.starts) - 1
	}
	start := l.starts[n]
	end := len(l.text)
	if n+1 < len(l.starts) {
		end = l.starts[n+1] - 1
	}
	return strings.TrimSuffix(l.text[start:end], "\r"), start
}

// Offset returns the byte offset and tree-sitter point of pos. Positions past
// the end of a line clamp to its end, lines past the end of the document
// clamp to the last line.
func (l *Lines) Offset(pos protocol.Position) (int, sitter.Point) {
	row := int(pos.Line)
	if row >= len(l.starts) {
		row = len(l.starts) - 1
	}
	line, start := l.line(row)

	var units uint32
	col := 0
	for _, r := range line {
		n := uint32(utf16Len(r))
		if units+n > pos.Character {
			break
		}
		units += n
		col += utf8.RuneLen(r)
	}
	return start + col, sitter.Point{Row: uint32(row), Column: uint32(col)}
}

// Position converts a tree-sitter point back to an LSP position.
func (l *Lines) Position(pt sitter.Point) protocol.Position {
	row := int(pt.Row)
	if row >= len(l.starts) {
		row = len(l.starts) - 1
	}
	line, _ := l.line(row)
	col := int(pt.Column)
	if col > len(line) {
		col = len(line)
	}
	var units uint32
	for _, r := range line[:col] {
		units += uint32(utf16Len(r))
	}
	return protocol.Position{Line: uint32(row), Character: units}
}

func utf16Len(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// EditInput describes replacing rng with text in the indexed document, for
// feeding an incremental reparse.
func (l *Lines) EditInput(rng protocol.Range, text string) sitter.EditInput {
	startByte, startPoint := l.Offset(rng.Start)
	endByte, endPoint := l.Offset(rng.End)
	if endByte < startByte {
		endByte, endPoint = startByte, startPoint
	}
	return sitter.EditInput{
		StartIndex:  uint32(startByte),
		OldEndIndex: uint32(endByte),
		NewEndIndex: uint32(startByte + len(text)),
		StartPoint:  startPoint,
		OldEndPoint: endPoint,
		NewEndPoint: endPointAfter(startPoint, text),
	}
}

func endPointAfter(start sitter.Point, text string) sitter.Point {
	rows := strings.Count(text, "\n")
	if rows == 0 {
		return sitter.Point{Row: start.Row, Column: start.Column + uint32(len(text))}
	}
	last := text[strings.LastIndexByte(text, '\n')+1:]
	return sitter.Point{Row: start.Row + uint32(rows), Column: uint32(len(last))}
}

// ApplyChange splices text over rng. A reversed range is treated as empty.
func ApplyChange(document string, rng protocol.Range, text string) string {
	l := NewLines(document)
	start, _ := l.Offset(rng.Start)
	end, _ := l.Offset(rng.End)
	if end < start {
		end = start
	}
	return document[:start] + text + document[end:]
}

// ApplyChanges applies LSP content changes in order. Whole-document changes
// replace everything.
func ApplyChanges(document string, changes []any) string {
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				document = c.Text
				continue
			}
			document = ApplyChange(document, *c.Range, c.Text)
		case protocol.TextDocumentContentChangeEventWhole:
			document = c.Text
		}
	}
	return document
}
