package server

import (
	"net/url"
	"path"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	ws := s.Workspace()
	if ws == nil {
		return errNotInitialized
	}
	doc := params.TextDocument
	languageID := s.languageOf(doc.URI, doc.LanguageID)
	_, err := ws.Open(doc.URI, languageID, doc.Version, doc.Text)
	return err
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	ws := s.Workspace()
	if ws == nil {
		return errNotInitialized
	}
	_, err := ws.Change(params.TextDocument.URI, params.TextDocument.Version, params.ContentChanges...)
	return err
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	ws := s.Workspace()
	if ws == nil {
		return errNotInitialized
	}
	return ws.Close(params.TextDocument.URI)
}

// languageOf prefers a configured extension mapping over the client's
// language id.
func (s *Server) languageOf(uri, clientLanguageID string) string {
	s.mu.Lock()
	extensions := s.cfg.Extensions
	s.mu.Unlock()
	if len(extensions) == 0 {
		return clientLanguageID
	}
	u, err := url.Parse(uri)
	if err != nil {
		return clientLanguageID
	}
	if id, ok := extensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return id
	}
	return clientLanguageID
}
