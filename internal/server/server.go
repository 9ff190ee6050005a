// Package server exposes the diagnostics coordinator over the Language Server
// Protocol. Open editor buffers are workspace documents and every marker
// change is published as textDocument/publishDiagnostics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"vigil/internal/analysis"
	"vigil/internal/config"
	"vigil/internal/diagnostics"
	"vigil/internal/scheduler"
	"vigil/internal/store"
	"vigil/internal/workspace"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

var log = commonlog.GetLogger("vigil.server")

const (
	Name = "vigil"

	// MethodSetLanguage reassigns the language of an open document.
	MethodSetLanguage = "vigil/setLanguage"

	// CommandRevalidate re-runs the analyzer on every tracked document.
	CommandRevalidate = "vigil.revalidate"
)

var errNotInitialized = errors.New("server not initialized")

type SetLanguageParams struct {
	URI        protocol.DocumentUri `json:"uri"`
	LanguageID string               `json:"languageId"`
}

type Options struct {
	// Config is the base configuration. initializationOptions are merged on top.
	Config   config.Config
	Observer diagnostics.Observer
	// Tap also receives every published marker set.
	Tap   workspace.Publisher
	Debug bool
}

type Server struct {
	opts    Options
	handler *protocol.Handler

	mu     sync.Mutex
	cfg    config.Config
	notify glsp.NotifyFunc
	ctx    context.Context
	cancel context.CancelFunc

	ws       *workspace.Workspace
	sched    *scheduler.Scheduler
	cache    *store.Store
	analyzer *analysis.SyntaxAnalyzer
	coord    *diagnostics.Coordinator
}

func New(opts Options) *Server {
	s := &Server{opts: opts, cfg: opts.Config}
	s.handler = &protocol.Handler{
		Initialize:              s.initialize,
		Initialized:             s.initialized,
		Shutdown:                s.shutdown,
		SetTrace:                s.setTrace,
		TextDocumentDidOpen:     s.textDocumentDidOpen,
		TextDocumentDidChange:   s.textDocumentDidChange,
		TextDocumentDidClose:    s.textDocumentDidClose,
		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
	}
	return s
}

// Handle implements glsp.Handler. Methods outside the protocol are routed
// here, the rest go to the protocol handler.
func (s *Server) Handle(ctx *glsp.Context) (r any, validMethod bool, validParams bool, err error) {
	switch ctx.Method {
	case MethodSetLanguage:
		validMethod = true
		if !s.handler.IsInitialized() {
			return nil, true, true, errNotInitialized
		}
		var params SetLanguageParams
		if err = json.Unmarshal(ctx.Params, &params); err == nil {
			validParams = true
			err = s.setLanguage(ctx, &params)
		}
		return
	default:
		return s.handler.Handle(ctx)
	}
}

// RunStdio serves a single client on stdin and stdout.
func (s *Server) RunStdio() error {
	return glspserver.NewServer(s, Name, s.opts.Debug).RunStdio()
}

// Workspace returns the open documents. It is nil before initialize.
func (s *Server) Workspace() *workspace.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

func (s *Server) setLanguage(_ *glsp.Context, params *SetLanguageParams) error {
	ws := s.Workspace()
	if ws == nil {
		return errNotInitialized
	}
	return ws.SetLanguage(params.URI, params.LanguageID)
}
