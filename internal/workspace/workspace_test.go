package workspace_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vigil/internal/diagnostics"
	"vigil/internal/scheduler"
	"vigil/internal/workspace"

	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type published struct {
	uri     string
	version int32
	markers []diagnostics.Marker
}

type recorder struct {
	mu  sync.Mutex
	all []published
}

func (r *recorder) publish(uri string, version int32, markers []diagnostics.Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, published{uri, version, markers})
}

func (r *recorder) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all[len(r.all)-1]
}

func TestOpenTwice(t *testing.T) {
	w := workspace.New()
	_, err := w.Open("file:///a.go", "go", 1, "package a")
	require.NoError(t, err)
	_, err = w.Open("file:///a.go", "go", 1, "package a")
	require.ErrorIs(t, err, workspace.ErrDocumentOpen)
}

func TestChange(t *testing.T) {
	w := workspace.New()
	doc, err := w.Open("file:///a.go", "go", 3, "hello\nworld\n")
	require.NoError(t, err)

	notified := 0
	sub := doc.OnDidChangeContent(func() { notified++ })

	_, err = w.Change("file:///a.go", 4, protocol.TextDocumentContentChangeEvent{
		Range: &protocol.Range{
			Start: protocol.Position{Line: 1, Character: 0},
			End:   protocol.Position{Line: 1, Character: 5},
		},
		Text: "there",
	})
	require.NoError(t, err)
	require.Equal(t, "hello\nthere\n", doc.Text())
	require.Equal(t, int32(4), doc.Version())
	require.Equal(t, 1, notified)

	// A stale version still advances.
	_, err = w.Replace("file:///a.go", 2, "new")
	require.NoError(t, err)
	require.Equal(t, "new", doc.Text())
	require.Equal(t, int32(5), doc.Version())
	require.Equal(t, 2, notified)

	sub.Unsubscribe()
	_, err = w.Replace("file:///a.go", 0, "newer")
	require.NoError(t, err)
	require.Equal(t, 2, notified)

	_, err = w.Replace("file:///missing.go", 1, "")
	require.ErrorIs(t, err, workspace.ErrDocumentNotFound)
}

func TestLifecycleEvents(t *testing.T) {
	w := workspace.New()
	var events []string
	w.OnDidCreate(func(d diagnostics.Document) { events = append(events, "create "+d.URI()) })
	w.OnDidChangeLanguage(func(d diagnostics.Document, old string) {
		events = append(events, "language "+old+"->"+d.LanguageID())
	})
	w.OnWillDispose(func(d diagnostics.Document) {
		require.False(t, d.IsDisposed(), "document must still be live during will-dispose")
		events = append(events, "dispose "+d.URI())
	})

	doc, err := w.Open("file:///a.txt", "plaintext", 1, "")
	require.NoError(t, err)
	require.NoError(t, w.SetLanguage("file:///a.txt", "plaintext"))
	require.NoError(t, w.SetLanguage("file:///a.txt", "go"))
	require.NoError(t, w.Close("file:///a.txt"))

	require.Equal(t, []string{
		"create file:///a.txt",
		"language plaintext->go",
		"dispose file:///a.txt",
	}, events)
	require.True(t, doc.IsDisposed())
	_, ok := w.Get("file:///a.txt")
	require.False(t, ok)
	require.ErrorIs(t, w.Close("file:///a.txt"), workspace.ErrDocumentNotFound)
}

func TestMarkersPerOwner(t *testing.T) {
	rec := &recorder{}
	w := workspace.New(workspace.WithPublisher(rec.publish))
	doc, err := w.Open("file:///a.go", "go", 7, "")
	require.NoError(t, err)

	syntax := []diagnostics.Marker{{Message: "syntax", Severity: diagnostics.SeverityError}}
	lint := []diagnostics.Marker{{Message: "lint", Severity: diagnostics.SeverityWarning}}

	w.SetMarkers(doc, "syntax", syntax)
	w.SetMarkers(doc, "lint", lint)
	require.Equal(t, append(append([]diagnostics.Marker{}, lint...), syntax...), w.Markers(doc.URI()))
	require.Equal(t, syntax, w.MarkersFor(doc.URI(), "syntax"))

	w.SetMarkers(doc, "syntax", nil)
	require.Equal(t, lint, w.Markers(doc.URI()))
	require.Equal(t, published{"file:///a.go", 7, lint}, rec.last())

	require.NoError(t, w.Close(doc.URI()))
	w.SetMarkers(doc, "lint", lint)
	require.Empty(t, w.Markers(doc.URI()), "closed documents take no markers")
}

type staticAnalyzer struct{}

func (staticAnalyzer) Owner() string { return "static" }

func (staticAnalyzer) Analyze(_ context.Context, doc diagnostics.Document) ([]diagnostics.Marker, error) {
	if doc.Text() == "" {
		return nil, errors.New("empty document")
	}
	return []diagnostics.Marker{{Message: doc.Text()}}, nil
}

func TestCoordinatorOverWorkspace(t *testing.T) {
	rec := &recorder{}
	w := workspace.New(workspace.WithPublisher(rec.publish))
	clock := scheduler.NewManualClock()
	c := diagnostics.New(w, diagnostics.Language("go"), staticAnalyzer{},
		diagnostics.WithScheduler(scheduler.NewScheduler(1, clock)),
		diagnostics.WithErrorHandler(func(diagnostics.Document, error) {}),
	)

	doc, err := w.Open("file:///a.go", "go", 1, "first")
	require.NoError(t, err)
	c.Wait()
	require.Equal(t, "first", w.MarkersFor(doc.URI(), "static")[0].Message)

	_, err = w.Replace(doc.URI(), 2, "second")
	require.NoError(t, err)
	clock.Advance(diagnostics.DefaultDebounce)
	c.Wait()
	require.Equal(t, "second", w.MarkersFor(doc.URI(), "static")[0].Message)
	require.Equal(t, int32(2), rec.last().version)

	require.NoError(t, w.Close(doc.URI()))
	require.Equal(t, published{"file:///a.go", 2, []diagnostics.Marker{}}, rec.last())

	c.Dispose()
	require.Zero(t, w.Subscriptions())
}
