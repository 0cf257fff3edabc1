package lspserver

import (
	"context"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
)

// textDocumentReferences handles the textDocument/references request.
// The result always includes the position under the cursor.
func (s *Server) textDocumentReferences(_ *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	path := uriToPath(string(params.TextDocument.URI))
	line := internalLine(params.Position)
	char := int(params.Position.Character)

	def, ok := s.resolver.Resolve(context.Background(), path, line, char)
	if !ok {
		return nil, nil
	}

	var locations []protocol.Location
	cursorIncluded := false
	canonical := s.index.Canonical(path)

	for _, ref := range s.resolver.References(def) {
		locations = append(locations, protocol.Location{
			URI:   protocol.DocumentUri(pathToURI(ref.File)),
			Range: usageRange(ref),
		})
		if ref.File == canonical && ref.Line == line &&
			char >= ref.StartChar && char < ref.EndChar {
			cursorIncluded = true
		}
	}

	if !cursorIncluded {
		if rng, ok := s.cursorIdentifierRange(canonical, line, char); ok {
			locations = append(locations, protocol.Location{
				URI:   protocol.DocumentUri(pathToURI(canonical)),
				Range: rng,
			})
		}
	}
	return locations, nil
}

// cursorIdentifierRange computes the span of the identifier under the
// cursor so the current position can be reported even when it is not a
// recorded usage (e.g. a definition name).
func (s *Server) cursorIdentifierRange(file string, line, char int) (protocol.Range, bool) {
	content, ok := s.index.Content(file)
	if !ok {
		return protocol.Range{}, false
	}
	lineText, ok := lineAt(content, line)
	if !ok {
		return protocol.Range{}, false
	}
	if _, start, end, ok := pytestsyntax.IdentifierAt(lineText, char); ok {
		return lineSpanRange(line, start, end), true
	}
	return protocol.Range{}, false
}
