package lspserver

import (
	"context"
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentPrepareRename validates that the fixture under the cursor
// is renameable and returns its range. Per the LSP spec, non-renameable
// positions return null rather than an error.
func (s *Server) textDocumentPrepareRename(_ *glsp.Context, params *protocol.PrepareRenameParams) (any, error) {
	path := uriToPath(string(params.TextDocument.URI))
	line := internalLine(params.Position)
	char := int(params.Position.Character)

	def, ok := s.resolver.Resolve(context.Background(), path, line, char)
	if !ok {
		return nil, nil
	}
	// Validate against a placeholder name: only the target checks apply.
	if err := s.resolver.ValidateRename(def, def.Name); err != nil {
		return nil, nil
	}

	canonical := s.index.Canonical(path)
	rng, ok := s.cursorIdentifierRange(canonical, line, char)
	if !ok {
		rng = definitionRange(def)
	}
	return &protocol.RangeWithPlaceholder{
		Range:       rng,
		Placeholder: def.Name,
	}, nil
}

// textDocumentRename handles the textDocument/rename request. The edit
// set is exactly the reference set of the resolved definition.
func (s *Server) textDocumentRename(_ *glsp.Context, params *protocol.RenameParams) (*protocol.WorkspaceEdit, error) {
	path := uriToPath(string(params.TextDocument.URI))
	def, ok := s.resolver.Resolve(context.Background(),
		path, internalLine(params.Position), int(params.Position.Character))
	if !ok {
		return nil, fmt.Errorf("no fixture at position")
	}

	if err := s.resolver.ValidateRename(def, params.NewName); err != nil {
		return nil, err
	}

	edits := make(map[protocol.DocumentUri][]protocol.TextEdit)
	for _, ref := range s.resolver.References(def) {
		uri := protocol.DocumentUri(pathToURI(ref.File))
		edits[uri] = append(edits[uri], protocol.TextEdit{
			Range:   usageRange(ref),
			NewText: params.NewName,
		})
	}
	return &protocol.WorkspaceEdit{Changes: edits}, nil
}
