// Package diagnostics keeps the markers of open documents in sync with an
// analyzer. Edits are debounced, analyzer results are applied only while the
// document is still at the version the pass started from.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"vigil/internal/scheduler"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("vigil.diagnostics")

const DefaultDebounce = 500 * time.Millisecond

var ErrDisposed = errors.New("coordinator disposed")

// Observer receives validation lifecycle notifications. Calls are made while
// the coordinator lock is held and must not call back into the coordinator.
type Observer interface {
	Tracked(count int)
	ValidationStarted(languageID string)
	ValidationApplied(languageID string, markers int)
	ValidationDiscarded(languageID string)
	ValidationFailed(languageID string)
}

type Option func(*Coordinator)

// WithDebounce sets the quiet period after an edit. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithScheduler sets where debounce timers run.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(c *Coordinator) { c.sched = s }
}

// WithErrorHandler receives analyzer failures from passes nobody waits on.
func WithErrorHandler(fn func(doc Document, err error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithContext sets the context passed to analyzer calls started by edits and
// lifecycle events.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

type listener struct {
	content Subscription
	timer   *scheduler.Handle
	gen     uint64
}

// Coordinator tracks the host documents matching a selector and keeps their
// markers under the analyzer's owner tag current.
type Coordinator struct {
	host     Host
	selector Selector
	analyzer Analyzer
	owner    string

	debounce time.Duration
	sched    *scheduler.Scheduler
	onError  func(Document, error)
	observer Observer
	ctx      context.Context

	mu            sync.Mutex
	listeners     map[Document]*listener
	subscriptions []Subscription
	disposed      bool

	inflight sync.WaitGroup
	passes   atomic.Uint64
}

// New subscribes to the host lifecycle and starts tracking every open
// document that matches selector.
func New(host Host, selector Selector, analyzer Analyzer, opts ...Option) *Coordinator {
	c := &Coordinator{
		host:      host,
		selector:  selector,
		analyzer:  analyzer,
		owner:     analyzer.Owner(),
		debounce:  DefaultDebounce,
		ctx:       context.Background(),
		listeners: make(map[Document]*listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sched == nil {
		c.sched = scheduler.NewScheduler(1, nil)
	}
	if c.onError == nil {
		c.onError = func(doc Document, err error) {
			log.Errorf("validation of %s failed: %v", doc.URI(), err)
		}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscriptions = []Subscription{
		host.OnDidCreate(c.onDidCreate),
		host.OnWillDispose(c.onWillDispose),
		host.OnDidChangeLanguage(c.onDidChangeLanguage),
	}
	for _, doc := range host.Documents() {
		c.track(doc)
	}
	log.Infof("tracking %d document(s) for %q (languages: %s)", len(c.listeners), c.owner, c.selector)
	return c
}

func (c *Coordinator) onDidCreate(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.track(doc)
}

func (c *Coordinator) onWillDispose(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.untrack(doc, doc.LanguageID(), true)
}

func (c *Coordinator) onDidChangeLanguage(doc Document, oldLanguageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.untrack(doc, oldLanguageID, !c.selector.Matches(doc.LanguageID()))
	c.track(doc)
}

// track requires c.mu.
func (c *Coordinator) track(doc Document) {
	if doc.IsDisposed() || !c.selector.Matches(doc.LanguageID()) {
		return
	}
	if _, ok := c.listeners[doc]; ok {
		return
	}
	l := &listener{}
	l.content = doc.OnDidChangeContent(func() {
		c.onDidChangeContent(doc, l)
	})
	c.listeners[doc] = l
	c.observer.Tracked(len(c.listeners))
	log.Debugf("tracking %s (%s)", doc.URI(), doc.LanguageID())

	c.spawn(doc)
}

// untrack requires c.mu. The analyzer is reset only if the document was
// tracked and is leaving for good, not when it is about to be tracked again.
func (c *Coordinator) untrack(doc Document, languageID string, leaving bool) {
	c.host.SetMarkers(doc, c.owner, []Marker{})

	l, ok := c.listeners[doc]
	if !ok {
		return
	}
	l.timer.Cancel()
	l.content.Unsubscribe()
	delete(c.listeners, doc)
	c.observer.Tracked(len(c.listeners))
	log.Debugf("untracked %s (%s)", doc.URI(), languageID)

	if leaving {
		c.reset(doc, languageID)
	}
}

func (c *Coordinator) reset(doc Document, languageID string) {
	if r, ok := c.analyzer.(Resetter); ok {
		r.Reset(doc, languageID)
	}
}

func (c *Coordinator) onDidChangeContent(doc Document, l *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.listeners[doc] != l {
		return
	}
	l.timer.Cancel()
	l.gen++
	gen := l.gen
	l.timer = c.sched.After(c.debounce, scheduler.Task{
		Name: "validate " + doc.URI(),
		Execute: func() error {
			c.onDebounced(doc, l, gen)
			return nil
		},
	})
}

func (c *Coordinator) onDebounced(doc Document, l *listener, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A timer that fired while being canceled must not start a pass.
	if c.disposed || c.listeners[doc] != l || l.gen != gen {
		return
	}
	l.timer = nil
	c.spawn(doc)
}

// spawn starts a pass nobody waits on. Requires c.mu.
func (c *Coordinator) spawn(doc Document) {
	ctx := c.ctx
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.validate(ctx, doc); err != nil {
			c.onError(doc, err)
		}
	}()
}

// validate runs one pass. A result that no longer matches the document is
// dropped without error.
func (c *Coordinator) validate(ctx context.Context, doc Document) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	version := doc.Version()
	languageID := doc.LanguageID()
	c.observer.ValidationStarted(languageID)
	c.mu.Unlock()

	pass := c.passes.Add(1)
	log.Debugf("pass %d: analyzing %s at version %d", pass, doc.URI(), version)

	markers, err := c.analyzer.Analyze(ctx, doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil
	}
	if err != nil {
		c.observer.ValidationFailed(languageID)
		return fmt.Errorf("analyze %s: %w", doc.URI(), err)
	}
	_, tracked := c.listeners[doc]
	if !tracked ||
		doc.IsDisposed() ||
		doc.Version() != version ||
		!c.selector.Matches(doc.LanguageID()) {
		log.Debugf("pass %d: discarded stale result for %s", pass, doc.URI())
		c.observer.ValidationDiscarded(languageID)
		return nil
	}
	if markers == nil {
		markers = []Marker{}
	}
	c.host.SetMarkers(doc, c.owner, markers)
	c.observer.ValidationApplied(languageID, len(markers))
	log.Debugf("pass %d: applied %d marker(s) to %s", pass, len(markers), doc.URI())
	return nil
}

// Revalidate validates every matching open document of the host concurrently
// and waits for all passes. A failing pass does not cancel the others.
// Superseded results are not errors; the first analyzer failure is returned.
func (c *Coordinator) Revalidate(ctx context.Context) error {
	var docs []Document
	for _, doc := range c.host.Documents() {
		if doc.IsDisposed() || !c.selector.Matches(doc.LanguageID()) {
			continue
		}
		docs = append(docs, doc)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.inflight.Add(len(docs))
	c.mu.Unlock()

	var g errgroup.Group
	for _, doc := range docs {
		g.Go(func() error {
			defer c.inflight.Done()
			return c.validate(ctx, doc)
		})
	}
	return g.Wait()
}

// Tracked reports whether doc is currently tracked.
func (c *Coordinator) Tracked(doc Document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.listeners[doc]
	return ok
}

// Len returns the number of tracked documents.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Wait blocks until every pass started so far has finished, including the
// passes of a Revalidate call still in progress. A hanging analyzer call makes
// Wait hang as well.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Dispose untracks every document, resetting the analyzer for each, and drops
// the host subscriptions. Later calls do nothing.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for doc := range c.listeners {
		c.untrack(doc, doc.LanguageID(), true)
	}
	subs := c.subscriptions
	c.subscriptions = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	log.Infof("disposed coordinator for %q", c.owner)
}

type nopObserver struct{}

func (nopObserver) Tracked(int)                   {}
func (nopObserver) ValidationStarted(string)      {}
func (nopObserver) ValidationApplied(string, int) {}
func (nopObserver) ValidationDiscarded(string)    {}
func (nopObserver) ValidationFailed(string)       {}
