package server

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) workspaceExecuteCommand(
	context *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	switch params.Command {
	case CommandRevalidate:
		return nil, s.revalidate()
	default:
		return nil, fmt.Errorf("unknown command %q", params.Command)
	}
}

func (s *Server) revalidate() error {
	s.mu.Lock()
	coord, ctx := s.coord, s.ctx
	s.mu.Unlock()
	if coord == nil {
		return errNotInitialized
	}
	log.Info("revalidating all documents")
	return coord.Revalidate(ctx)
}
