// Package watch keeps a workspace in sync with the files under a directory.
// Every matching file is an open document; writes become edits and removals
// dispose the document.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"vigil/internal/parser"
	"vigil/internal/scheduler"
	"vigil/internal/workspace"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vigil.watch")

type Config struct {
	Root       string
	Include    []string
	Exclude    []string
	Extensions map[string]string
}

type Watcher struct {
	root       string
	include    []string
	exclude    []string
	extensions map[string]string

	ws    *workspace.Workspace
	sched *scheduler.Scheduler
	fsw   *fsnotify.Watcher

	closeOnce sync.Once
}

// New creates a watcher for cfg.Root. File events are applied to ws as tasks
// on sched, which the caller must run.
func New(cfg Config, ws *workspace.Workspace, sched *scheduler.Scheduler) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	include := cfg.Include
	if len(include) == 0 {
		include = []string{"**/*"}
	}
	return &Watcher{
		root:       root,
		include:    include,
		exclude:    cfg.Exclude,
		extensions: cfg.Extensions,
		ws:         ws,
		sched:      sched,
		fsw:        fsw,
	}, nil
}

// URI returns the file URI of an absolute path.
func URI(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

// Path returns the path of uri relative to the watched root.
func (w *Watcher) Path(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	p := filepath.FromSlash(u.Path)
	if rel, err := filepath.Rel(w.root, p); err == nil {
		return rel
	}
	return p
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// languageOf returns the language for a file, or "" if the file is not watched.
func (w *Watcher) languageOf(p string) string {
	rel, ok := w.rel(p)
	if !ok || !matchAny(w.include, rel) || matchAny(w.exclude, rel) {
		return ""
	}
	id := parser.LanguageForPath(p, w.extensions)
	if id == "plaintext" {
		return ""
	}
	return id
}

// skipDir reports whether a directory is excluded. A directory is excluded
// when a file directly inside it would be.
func (w *Watcher) skipDir(p string) bool {
	if p == w.root {
		return false
	}
	if strings.HasPrefix(filepath.Base(p), ".") {
		return true
	}
	rel, ok := w.rel(p)
	if !ok {
		return true
	}
	return matchAny(w.exclude, path.Join(rel, "x"))
}

// Scan walks the root, opens every matching file and watches every directory.
// It returns once all files are open.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	return w.scan(ctx, w.root)
}

func (w *Watcher) scan(ctx context.Context, dir string) (int, error) {
	fileCh := make(chan string, 100)
	var wg sync.WaitGroup
	opened := 0

	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range fileCh {
			if w.load(p) {
				opened++
			}
		}
	}()

	log.Infof("scanning %s", dir)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warningf("walk error: %v", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if w.skipDir(p) {
				log.Debugf("skipping %s", p)
				return fs.SkipDir
			}
			if err := w.fsw.Add(p); err != nil {
				log.Warningf("failed to watch %s: %v", p, err)
			}
			return nil
		}
		if w.languageOf(p) == "" {
			return nil
		}
		fileCh <- p
		return nil
	})

	close(fileCh)
	wg.Wait()
	return opened, err
}

// load opens p or updates its document. It reports whether a new document
// was opened.
func (w *Watcher) load(p string) bool {
	languageID := w.languageOf(p)
	if languageID == "" {
		return false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		log.Warningf("read error: %s: %v", p, err)
		return false
	}
	uri := URI(p)

	if doc, ok := w.ws.Get(uri); ok {
		if doc.Text() == string(data) {
			return false
		}
		if _, err := w.ws.Replace(uri, doc.Version()+1, string(data)); err != nil {
			log.Warningf("update %s: %v", uri, err)
		}
		return false
	}
	if _, err := w.ws.Open(uri, languageID, 1, string(data)); err != nil {
		if !errors.Is(err, workspace.ErrDocumentOpen) {
			log.Warningf("open %s: %v", uri, err)
		}
		return false
	}
	return true
}

func (w *Watcher) unload(p string) {
	uri := URI(p)
	if err := w.ws.Close(uri); err != nil && !errors.Is(err, workspace.ErrDocumentNotFound) {
		log.Warningf("close %s: %v", uri, err)
	}
	// A removed directory takes its documents with it.
	prefix := uri + "/"
	for _, doc := range w.ws.Documents() {
		if strings.HasPrefix(doc.URI(), prefix) {
			if err := w.ws.Close(doc.URI()); err != nil {
				log.Debugf("close %s: %v", doc.URI(), err)
			}
		}
	}
}

// Run applies file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.sched.Enqueue(scheduler.Task{
				Name: event.Op.String() + " " + event.Name,
				Execute: func() error {
					w.handle(ctx, event)
					return nil
				},
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.unload(event.Name)
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if !w.skipDir(event.Name) {
				if _, err := w.scan(ctx, event.Name); err != nil {
					log.Warningf("scan %s: %v", event.Name, err)
				}
			}
			return
		}
		w.load(event.Name)
	case event.Has(fsnotify.Write):
		w.load(event.Name)
	}
}

// Close stops watching. Open documents stay in the workspace.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
