// Package workspace is an in-memory diagnostics.Host holding open documents
// and their markers, partitioned by owner.
package workspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"vigil/internal/diagnostics"
	"vigil/internal/sitteradapter"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("vigil.workspace")

var (
	// ErrDocumentOpen is returned when opening a URI that is already open
	ErrDocumentOpen = errors.New("document already open")

	// ErrDocumentNotFound is returned for operations on a URI that is not open
	ErrDocumentNotFound = errors.New("document not open")
)

// Document is an open document. All accessors are safe for concurrent use.
type Document struct {
	uri string

	mu         sync.RWMutex
	languageID string
	version    int32
	text       string
	disposed   bool

	changed emitter[func()]
}

func (d *Document) URI() string { return d.uri }

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

func (d *Document) Version() int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *Document) IsDisposed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disposed
}

func (d *Document) LanguageID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.languageID
}

func (d *Document) OnDidChangeContent(fn func()) diagnostics.Subscription {
	return d.changed.add(fn)
}

// Publisher receives the merged markers of a document after every change to
// any owner's set.
type Publisher func(uri string, version int32, markers []diagnostics.Marker)

type Option func(*Workspace)

func WithPublisher(p Publisher) Option {
	return func(w *Workspace) { w.publish = p }
}

type Workspace struct {
	mu      sync.RWMutex
	docs    map[string]*Document
	markers map[string]map[string][]diagnostics.Marker

	created   emitter[func(diagnostics.Document)]
	disposing emitter[func(diagnostics.Document)]
	language  emitter[func(diagnostics.Document, string)]

	publish Publisher
}

func New(opts ...Option) *Workspace {
	w := &Workspace{
		docs:    make(map[string]*Document),
		markers: make(map[string]map[string][]diagnostics.Marker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open adds a document and notifies create listeners.
func (w *Workspace) Open(uri, languageID string, version int32, text string) (*Document, error) {
	w.mu.Lock()
	if _, ok := w.docs[uri]; ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDocumentOpen, uri)
	}
	doc := &Document{uri: uri, languageID: languageID, version: version, text: text}
	w.docs[uri] = doc
	w.mu.Unlock()

	log.Debugf("opened %s (%s) at version %d", uri, languageID, version)
	for _, fn := range w.created.snapshot() {
		fn(doc)
	}
	return doc, nil
}

// Get returns the open document for uri.
func (w *Workspace) Get(uri string) (*Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[uri]
	return doc, ok
}

func (w *Workspace) lookup(uri string) (*Document, error) {
	doc, ok := w.Get(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return doc, nil
}

// Change applies LSP content changes, either TextDocumentContentChangeEvent or
// TextDocumentContentChangeEventWhole values, and sets the version. A version
// that does not increase is replaced by the previous version plus one.
func (w *Workspace) Change(uri string, version int32, changes ...any) (*Document, error) {
	doc, err := w.lookup(uri)
	if err != nil {
		return nil, err
	}

	doc.mu.Lock()
	doc.text = sitteradapter.ApplyChanges(doc.text, changes)
	if version <= doc.version {
		version = doc.version + 1
	}
	doc.version = version
	doc.mu.Unlock()

	for _, fn := range doc.changed.snapshot() {
		fn()
	}
	return doc, nil
}

// Replace sets the whole text of a document.
func (w *Workspace) Replace(uri string, version int32, text string) (*Document, error) {
	return w.Change(uri, version, protocol.TextDocumentContentChangeEventWhole{Text: text})
}

// SetLanguage reassigns the language of a document. Listeners are not
// notified if the language is unchanged.
func (w *Workspace) SetLanguage(uri, languageID string) error {
	doc, err := w.lookup(uri)
	if err != nil {
		return err
	}

	doc.mu.Lock()
	old := doc.languageID
	doc.languageID = languageID
	doc.mu.Unlock()
	if old == languageID {
		return nil
	}

	log.Debugf("%s changed language from %s to %s", uri, old, languageID)
	for _, fn := range w.language.snapshot() {
		fn(doc, old)
	}
	return nil
}

// Close notifies will-dispose listeners, then marks the document disposed and
// forgets it along with its markers.
func (w *Workspace) Close(uri string) error {
	doc, err := w.lookup(uri)
	if err != nil {
		return err
	}

	for _, fn := range w.disposing.snapshot() {
		fn(doc)
	}

	doc.mu.Lock()
	doc.disposed = true
	doc.mu.Unlock()

	w.mu.Lock()
	if w.docs[uri] == doc {
		delete(w.docs, uri)
		delete(w.markers, uri)
	}
	w.mu.Unlock()
	log.Debugf("closed %s", uri)
	return nil
}

// CloseAll closes every open document.
func (w *Workspace) CloseAll() {
	for _, doc := range w.Documents() {
		if err := w.Close(doc.URI()); err != nil {
			log.Debugf("close %s: %v", doc.URI(), err)
		}
	}
}

// Documents returns the open documents ordered by URI.
func (w *Workspace) Documents() []diagnostics.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	docs := make([]diagnostics.Document, 0, len(w.docs))
	for _, doc := range w.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].URI() < docs[j].URI() })
	return docs
}

func (w *Workspace) OnDidCreate(fn func(doc diagnostics.Document)) diagnostics.Subscription {
	return w.created.add(fn)
}

func (w *Workspace) OnWillDispose(fn func(doc diagnostics.Document)) diagnostics.Subscription {
	return w.disposing.add(fn)
}

func (w *Workspace) OnDidChangeLanguage(fn func(doc diagnostics.Document, oldLanguageID string)) diagnostics.Subscription {
	return w.language.add(fn)
}

// Subscriptions returns the number of lifecycle listeners.
func (w *Workspace) Subscriptions() int {
	return w.created.len() + w.disposing.len() + w.language.len()
}

// SetMarkers replaces the markers of doc under owner and publishes the merged
// set. Markers for documents that are no longer open are dropped.
func (w *Workspace) SetMarkers(doc diagnostics.Document, owner string, markers []diagnostics.Marker) {
	w.mu.Lock()
	if w.docs[doc.URI()] != doc {
		w.mu.Unlock()
		return
	}
	owners, ok := w.markers[doc.URI()]
	if !ok {
		owners = make(map[string][]diagnostics.Marker)
		w.markers[doc.URI()] = owners
	}
	if len(markers) == 0 {
		delete(owners, owner)
	} else {
		owners[owner] = append([]diagnostics.Marker(nil), markers...)
	}
	merged := merge(owners)
	w.mu.Unlock()

	if w.publish != nil {
		w.publish(doc.URI(), doc.Version(), merged)
	}
}

// Markers returns the markers of every owner for uri, ordered by owner.
func (w *Workspace) Markers(uri string) []diagnostics.Marker {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return merge(w.markers[uri])
}

// MarkersFor returns the markers owner set on uri.
func (w *Workspace) MarkersFor(uri, owner string) []diagnostics.Marker {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]diagnostics.Marker{}, w.markers[uri][owner]...)
}

func merge(owners map[string][]diagnostics.Marker) []diagnostics.Marker {
	names := make([]string, 0, len(owners))
	for name := range owners {
		names = append(names, name)
	}
	sort.Strings(names)
	merged := []diagnostics.Marker{}
	for _, name := range names {
		merged = append(merged, owners[name]...)
	}
	return merged
}
