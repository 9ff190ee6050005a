// Package parser parses documents with tree-sitter and extracts syntax
// errors and query matches from the resulting trees.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vigil.parser")

var ErrUnsupportedLanguage = errors.New("unsupported language")

// MatchCapture is the capture name query rules report on.
const MatchCapture = "match"

type Match struct {
	Start   sitter.Point
	End     sitter.Point
	Content string
}

type SyntaxError struct {
	Start   sitter.Point
	End     sitter.Point
	Missing bool
	// Node is the node type for missing nodes, the erroneous text otherwise.
	Node string
}

func (e SyntaxError) Message() string {
	if e.Missing {
		return fmt.Sprintf("missing %s", e.Node)
	}
	if e.Node == "" {
		return "syntax error"
	}
	return fmt.Sprintf("syntax error near %q", e.Node)
}

// Tree is a parsed document. Close it when done.
type Tree struct {
	tree     *sitter.Tree
	language *sitter.Language
	source   []byte
}

func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

func (t *Tree) Language() *sitter.Language {
	return t.language
}

func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// SyntaxErrors walks the tree and returns ERROR and MISSING nodes in document
// order. Descendants of an ERROR node are not reported separately. A
// non-positive limit means no limit.
func (t *Tree) SyntaxErrors(limit int) []SyntaxError {
	var out []SyntaxError
	var walk func(n *sitter.Node) bool
	walk = func(n *sitter.Node) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		switch {
		case n.IsMissing():
			out = append(out, SyntaxError{Start: n.StartPoint(), End: n.EndPoint(), Missing: true, Node: n.Type()})
			return true
		case n.IsError():
			out = append(out, SyntaxError{Start: n.StartPoint(), End: n.EndPoint(), Node: snippet(n.Content(t.source))})
			return true
		case !n.HasError():
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if !walk(n.Child(i)) {
				return false
			}
		}
		return true
	}
	walk(t.Root())
	return out
}

func snippet(s string) string {
	const max = 32
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return string(r)
}

// Query runs q against the tree, applying predicates, and returns the nodes
// captured as @match.
func (t *Tree) Query(q *Query) []Match {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q.query, t.Root())

	var matches []Match
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, t.source)
		for _, c := range m.Captures {
			if q.query.CaptureNameForId(c.Index) != MatchCapture {
				continue
			}
			matches = append(matches, Match{
				Start:   c.Node.StartPoint(),
				End:     c.Node.EndPoint(),
				Content: c.Node.Content(t.source),
			})
		}
	}
	return matches
}

// Query is a compiled tree-sitter query bound to one grammar.
type Query struct {
	query    *sitter.Query
	language string
}

// CompileQuery compiles source for languageID.
func CompileQuery(languageID string, source string) (*Query, error) {
	g, ok := Lookup(languageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, languageID)
	}
	q, err := sitter.NewQuery([]byte(source), g.Language())
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", languageID, err)
	}
	return &Query{query: q, language: languageID}, nil
}

func (q *Query) Language() string {
	return q.language
}

func (q *Query) Close() {
	q.query.Close()
}

// Pool keeps a bounded set of parsers per language.
type Pool struct {
	size int

	mu     sync.Mutex
	pools  map[string]chan *sitter.Parser
	closed bool
}

// NewPool creates a pool holding at most size idle parsers per language.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, pools: make(map[string]chan *sitter.Parser)}
}

func (p *Pool) idle(languageID string) chan *sitter.Parser {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pools[languageID]
	if !ok {
		ch = make(chan *sitter.Parser, p.size)
		p.pools[languageID] = ch
	}
	return ch
}

func (p *Pool) acquire(g *Grammar) *sitter.Parser {
	select {
	case sp := <-p.idle(g.ID):
		return sp
	default:
		sp := sitter.NewParser()
		sp.SetLanguage(g.Language())
		return sp
	}
}

func (p *Pool) release(languageID string, sp *sitter.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.pools[languageID]; ok && !p.closed {
		select {
		case ch <- sp:
			return
		default:
		}
	}
	sp.Close()
}

// Parse parses source as languageID.
func (p *Pool) Parse(ctx context.Context, languageID string, source []byte) (*Tree, error) {
	g, ok := Lookup(languageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, languageID)
	}
	sp := p.acquire(g)
	defer p.release(languageID, sp)

	tree, err := sp.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", languageID, err)
	}
	return &Tree{tree: tree, language: g.Language(), source: source}, nil
}

// Close frees all idle parsers.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.pools {
		close(ch)
		for sp := range ch {
			sp.Close()
		}
		delete(p.pools, id)
	}
	log.Debug("parser pool closed")
}
