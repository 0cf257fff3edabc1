package lspserver

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentCodeLens handles the textDocument/codeLens request. Each
// fixture definition in the file gets a lens with its usage count; the
// definition itself is excluded from the displayed number.
func (s *Server) textDocumentCodeLens(_ *glsp.Context, params *protocol.CodeLensParams) ([]protocol.CodeLens, error) {
	canonical := s.index.Canonical(uriToPath(string(params.TextDocument.URI)))

	var lenses []protocol.CodeLens
	for _, name := range s.index.DefinitionNames() {
		for _, def := range s.index.DefinitionsFor(name) {
			if def.File != canonical {
				continue
			}
			count := len(s.resolver.References(def)) - 1
			lenses = append(lenses, protocol.CodeLens{
				Range: definitionRange(def),
				Command: &protocol.Command{
					Title:   fmt.Sprintf("%d usages", count),
					Command: "pytest-lsp.showReferences",
				},
			})
		}
	}
	return lenses, nil
}
