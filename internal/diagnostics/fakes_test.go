package diagnostics_test

import (
	"context"
	"sync"

	"vigil/internal/diagnostics"
)

type fakeDoc struct {
	uri string

	mu        sync.Mutex
	version   int32
	language  string
	text      string
	disposed  bool
	listeners map[int]func()
	nextID    int
}

func (d *fakeDoc) URI() string { return d.uri }

func (d *fakeDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *fakeDoc) Version() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *fakeDoc) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

func (d *fakeDoc) LanguageID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.language
}

func (d *fakeDoc) OnDidChangeContent(fn func()) diagnostics.Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return diagnostics.SubscriptionFunc(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	})
}

func (d *fakeDoc) contentListeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// edit bumps the version and notifies content listeners.
func (d *fakeDoc) edit(text string) {
	d.mu.Lock()
	d.version++
	d.text = text
	fns := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type markerKey struct {
	uri   string
	owner string
}

type fakeHost struct {
	mu       sync.Mutex
	docs     []*fakeDoc
	created  map[int]func(diagnostics.Document)
	disposed map[int]func(diagnostics.Document)
	language map[int]func(diagnostics.Document, string)
	nextID   int
	markers  map[markerKey][]diagnostics.Marker
	sets     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		created:  make(map[int]func(diagnostics.Document)),
		disposed: make(map[int]func(diagnostics.Document)),
		language: make(map[int]func(diagnostics.Document, string)),
		markers:  make(map[markerKey][]diagnostics.Marker),
	}
}

func (h *fakeHost) Documents() []diagnostics.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	docs := make([]diagnostics.Document, 0, len(h.docs))
	for _, d := range h.docs {
		docs = append(docs, d)
	}
	return docs
}

func (h *fakeHost) subscribe(register func(id int), unregister func(id int)) diagnostics.Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	register(id)
	h.mu.Unlock()
	return diagnostics.SubscriptionFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		unregister(id)
	})
}

func (h *fakeHost) OnDidCreate(fn func(diagnostics.Document)) diagnostics.Subscription {
	return h.subscribe(
		func(id int) { h.created[id] = fn },
		func(id int) { delete(h.created, id) },
	)
}

func (h *fakeHost) OnWillDispose(fn func(diagnostics.Document)) diagnostics.Subscription {
	return h.subscribe(
		func(id int) { h.disposed[id] = fn },
		func(id int) { delete(h.disposed, id) },
	)
}

func (h *fakeHost) OnDidChangeLanguage(fn func(diagnostics.Document, string)) diagnostics.Subscription {
	return h.subscribe(
		func(id int) { h.language[id] = fn },
		func(id int) { delete(h.language, id) },
	)
}

func (h *fakeHost) SetMarkers(doc diagnostics.Document, owner string, markers []diagnostics.Marker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets++
	h.markers[markerKey{doc.URI(), owner}] = markers
}

func (h *fakeHost) markersOf(doc *fakeDoc, owner string) []diagnostics.Marker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markers[markerKey{doc.uri, owner}]
}

func (h *fakeHost) subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.created) + len(h.disposed) + len(h.language)
}

// add registers a document without notifying anyone.
func (h *fakeHost) add(uri, language string) *fakeDoc {
	d := &fakeDoc{uri: uri, version: 1, language: language, listeners: make(map[int]func())}
	h.mu.Lock()
	h.docs = append(h.docs, d)
	h.mu.Unlock()
	return d
}

func (h *fakeHost) open(uri, language string) *fakeDoc {
	d := h.add(uri, language)
	h.mu.Lock()
	fns := make([]func(diagnostics.Document), 0, len(h.created))
	for _, fn := range h.created {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
	return d
}

func (h *fakeHost) close(d *fakeDoc) {
	h.mu.Lock()
	fns := make([]func(diagnostics.Document), 0, len(h.disposed))
	for _, fn := range h.disposed {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}

	d.mu.Lock()
	d.disposed = true
	d.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, other := range h.docs {
		if other == d {
			h.docs = append(h.docs[:i], h.docs[i+1:]...)
			break
		}
	}
}

func (h *fakeHost) setLanguage(d *fakeDoc, language string) {
	d.mu.Lock()
	old := d.language
	d.language = language
	d.mu.Unlock()

	h.mu.Lock()
	fns := make([]func(diagnostics.Document, string), 0, len(h.language))
	for _, fn := range h.language {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(d, old)
	}
}

type analyzeCall struct {
	uri     string
	version int32
}

type resetCall struct {
	uri      string
	language string
}

// fakeAnalyzer reports one marker per call carrying the analyzed version.
// When gate is set every call blocks until a value is received from it.
type fakeAnalyzer struct {
	owner string
	gate  chan struct{}
	fail  error

	mu      sync.Mutex
	calls   []analyzeCall
	resets  []resetCall
	started chan analyzeCall
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{owner: "test", started: make(chan analyzeCall, 64)}
}

func (a *fakeAnalyzer) Owner() string { return a.owner }

func (a *fakeAnalyzer) Analyze(ctx context.Context, doc diagnostics.Document) ([]diagnostics.Marker, error) {
	call := analyzeCall{uri: doc.URI(), version: doc.Version()}
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
	a.started <- call

	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fail != nil {
		return nil, a.fail
	}
	return []diagnostics.Marker{{
		Severity: diagnostics.SeverityWarning,
		Message:  "checked",
		Code:     string(rune('0' + call.version%10)),
	}}, nil
}

func (a *fakeAnalyzer) Reset(doc diagnostics.Document, languageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets = append(a.resets, resetCall{uri: doc.URI(), language: languageID})
}

func (a *fakeAnalyzer) callsFor(uri string) []analyzeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []analyzeCall
	for _, c := range a.calls {
		if c.uri == uri {
			out = append(out, c)
		}
	}
	return out
}

func (a *fakeAnalyzer) resetCalls() []resetCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]resetCall(nil), a.resets...)
}
