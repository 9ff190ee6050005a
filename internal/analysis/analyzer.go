// Package analysis reports tree-sitter syntax errors and query rule matches
// as diagnostics markers.
package analysis

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"

	"vigil/internal/config"
	"vigil/internal/diagnostics"
	"vigil/internal/parser"
	"vigil/internal/sitteradapter"
	"vigil/internal/store"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vigil.analysis")

const CodeSyntax = "syntax"

type rule struct {
	id       string
	query    *parser.Query
	message  string
	severity diagnostics.Severity
}

// SyntaxAnalyzer implements diagnostics.Analyzer and diagnostics.Resetter.
// Results are cached by content when a store is given.
type SyntaxAnalyzer struct {
	owner       string
	max         int
	pool        *parser.Pool
	cache       *store.Store
	rules       map[string][]rule
	fingerprint string
}

// New compiles the configured rules. cache may be nil.
func New(cfg config.Config, cache *store.Store) (*SyntaxAnalyzer, error) {
	a := &SyntaxAnalyzer{
		owner: cfg.Owner,
		max:   cfg.MaxDiagnostics,
		pool:  parser.NewPool(4),
		cache: cache,
		rules: make(map[string][]rule),
	}

	h := sha256.New()
	for _, r := range cfg.Rules {
		q, err := parser.CompileQuery(r.Language, r.Query)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		a.rules[r.Language] = append(a.rules[r.Language], rule{
			id:       r.ID,
			query:    q,
			message:  r.Message,
			severity: severityOf(r.Severity),
		})
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00", r.ID, r.Language, r.Query, r.Message, r.Severity)
	}
	fmt.Fprintf(h, "max=%d", a.max)
	a.fingerprint = hex.EncodeToString(h.Sum(nil))

	log.Infof("analyzer %q ready with %d rule(s)", a.owner, len(cfg.Rules))
	return a, nil
}

func severityOf(name string) diagnostics.Severity {
	if name == "" {
		return diagnostics.SeverityWarning
	}
	return diagnostics.ParseSeverity(name)
}

func (a *SyntaxAnalyzer) Owner() string {
	return a.owner
}

func (a *SyntaxAnalyzer) hash(text string) string {
	h := sha256.New()
	h.Write([]byte(a.fingerprint))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze parses the document and returns its markers. Languages without a
// grammar produce no markers.
func (a *SyntaxAnalyzer) Analyze(ctx context.Context, doc diagnostics.Document) ([]diagnostics.Marker, error) {
	languageID := doc.LanguageID()
	if _, ok := parser.Lookup(languageID); !ok {
		return []diagnostics.Marker{}, nil
	}
	text := doc.Text()

	key := store.Key{URI: doc.URI(), Hash: a.hash(text), Language: languageID}
	if a.cache != nil {
		rec, err := a.cache.Get(key)
		if err == nil {
			log.Debugf("cache hit for %s", doc.URI())
			return rec.Markers, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warningf("cache lookup for %s: %v", doc.URI(), err)
		}
	}

	markers, err := a.analyze(ctx, languageID, text)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Put(store.Record{Key: key, Markers: markers}); err != nil {
			log.Warningf("cache store for %s: %v", doc.URI(), err)
		}
	}
	return markers, nil
}

func (a *SyntaxAnalyzer) analyze(ctx context.Context, languageID, text string) ([]diagnostics.Marker, error) {
	tree, err := a.pool.Parse(ctx, languageID, []byte(text))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := sitteradapter.NewLines(text)
	markers := []diagnostics.Marker{}

	for _, e := range tree.SyntaxErrors(a.max) {
		markers = append(markers, diagnostics.Marker{
			Range:    toRange(lines, e.Start, e.End),
			Severity: diagnostics.SeverityError,
			Code:     CodeSyntax,
			Source:   a.owner,
			Message:  e.Message(),
		})
	}

	for _, r := range a.rules[languageID] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, m := range tree.Query(r.query) {
			markers = append(markers, diagnostics.Marker{
				Range:    toRange(lines, m.Start, m.End),
				Severity: r.severity,
				Code:     r.id,
				Source:   a.owner,
				Message:  r.message,
			})
		}
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return comparePositions(markers[i].Range.Start, markers[j].Range.Start) < 0
	})
	if a.max > 0 && len(markers) > a.max {
		markers = slices.Clip(markers[:a.max])
	}
	return markers, nil
}

func comparePositions(a, b diagnostics.Position) int {
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Character, b.Character)
}

func toRange(lines *sitteradapter.Lines, start, end sitter.Point) diagnostics.Range {
	s := lines.Position(start)
	e := lines.Position(end)
	return diagnostics.Range{
		Start: diagnostics.Position{Line: s.Line, Character: s.Character},
		End:   diagnostics.Position{Line: e.Line, Character: e.Character},
	}
}

// Reset forgets cached results for the document.
func (a *SyntaxAnalyzer) Reset(doc diagnostics.Document, languageID string) {
	if a.cache == nil {
		return
	}
	n, err := a.cache.DeleteURI(doc.URI())
	if err != nil {
		log.Warningf("reset %s (%s): %v", doc.URI(), languageID, err)
		return
	}
	log.Debugf("reset %s (%s): dropped %d cached result(s)", doc.URI(), languageID, n)
}

// Close releases parsers and compiled queries. The cache is owned by the caller.
func (a *SyntaxAnalyzer) Close() {
	for _, rules := range a.rules {
		for _, r := range rules {
			r.query.Close()
		}
	}
	a.rules = nil
	a.pool.Close()
}
