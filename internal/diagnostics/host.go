package diagnostics

import "context"

// Subscription is a handle to a registered callback.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Document is an open editable unit owned by the host. Implementations must
// be comparable; the coordinator keys its bookkeeping by document identity.
type Document interface {
	URI() string
	Text() string
	// Version increases on every edit.
	Version() int32
	IsDisposed() bool
	LanguageID() string
	OnDidChangeContent(fn func()) Subscription
}

// Host is the editing environment the coordinator observes.
//
// Callbacks must not be invoked while the host holds locks that SetMarkers or
// the Document accessors would need.
type Host interface {
	Documents() []Document
	OnDidCreate(fn func(doc Document)) Subscription
	// OnWillDispose callbacks run before the document is marked disposed.
	OnWillDispose(fn func(doc Document)) Subscription
	OnDidChangeLanguage(fn func(doc Document, oldLanguageID string)) Subscription
	// SetMarkers replaces the markers of doc under owner. Other owners are untouched.
	SetMarkers(doc Document, owner string, markers []Marker)
}

// Analyzer produces markers for a document.
type Analyzer interface {
	Owner() string
	Analyze(ctx context.Context, doc Document) ([]Marker, error)
}

// Resetter is implemented by analyzers that keep per-document state.
// Reset is called when a tracked document is disposed or moves to a language
// outside the selector.
type Resetter interface {
	Reset(doc Document, languageID string)
}
