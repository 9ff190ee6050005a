package server

import (
	"fmt"
	"os"
	"path/filepath"

	"vigil/internal/diagnostics"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// publish sends the merged markers of a document to the client.
func (s *Server) publish(uri string, version int32, markers []diagnostics.Marker) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if s.opts.Tap != nil {
		s.opts.Tap(uri, version, markers)
	}
	if notify == nil {
		return
	}

	v := protocol.UInteger(version)
	notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &v,
		Diagnostics: toDiagnostics(markers),
	})
}

func toDiagnostics(markers []diagnostics.Marker) []protocol.Diagnostic {
	// An empty array clears the client's diagnostics, nil would encode as null.
	out := make([]protocol.Diagnostic, 0, len(markers))
	for _, m := range markers {
		out = append(out, toDiagnostic(m))
	}
	return out
}

func toDiagnostic(m diagnostics.Marker) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverity(m.Severity)
	d := protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: m.Range.Start.Line, Character: m.Range.Start.Character},
			End:   protocol.Position{Line: m.Range.End.Line, Character: m.Range.End.Character},
		},
		Severity: &severity,
		Message:  m.Message,
	}
	if m.Code != "" {
		d.Code = &protocol.IntegerOrString{Value: m.Code}
	}
	if m.Source != "" {
		source := m.Source
		d.Source = &source
	}
	return d
}

func getXDGStateHome(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)
	if err := os.MkdirAll(appStateDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return appStateDir, nil
}
