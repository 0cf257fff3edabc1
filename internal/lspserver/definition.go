package lspserver

import (
	"context"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDefinition handles the textDocument/definition request.
func (s *Server) textDocumentDefinition(_ *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	path := uriToPath(string(params.TextDocument.URI))
	def, ok := s.resolver.Resolve(context.Background(),
		path, internalLine(params.Position), int(params.Position.Character))
	if !ok {
		return nil, nil
	}

	return protocol.Location{
		URI:   protocol.DocumentUri(pathToURI(def.File)),
		Range: definitionRange(def),
	}, nil
}
