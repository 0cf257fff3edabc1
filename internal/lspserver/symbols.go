package lspserver

import (
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDocumentSymbol lists the fixture definitions of a file.
func (s *Server) textDocumentDocumentSymbol(_ *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	canonical := s.index.Canonical(uriToPath(string(params.TextDocument.URI)))

	var symbols []protocol.DocumentSymbol
	for _, name := range s.index.DefinitionNames() {
		for _, def := range s.index.DefinitionsFor(name) {
			if def.File != canonical {
				continue
			}
			r := definitionRange(def)
			detail := def.Signature
			symbols = append(symbols, protocol.DocumentSymbol{
				Name:           def.Name,
				Detail:         &detail,
				Kind:           protocol.SymbolKindFunction,
				Range:          r,
				SelectionRange: r,
			})
		}
	}
	return symbols, nil
}

// workspaceSymbol returns fixture definitions across the workspace
// matching the query. An empty query matches everything.
func (s *Server) workspaceSymbol(_ *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	query := strings.ToLower(params.Query)

	var results []protocol.SymbolInformation
	for _, name := range s.index.DefinitionNames() {
		if query != "" && !strings.Contains(strings.ToLower(name), query) {
			continue
		}
		for _, def := range s.index.DefinitionsFor(name) {
			results = append(results, protocol.SymbolInformation{
				Name: def.Name,
				Kind: protocol.SymbolKindFunction,
				Location: protocol.Location{
					URI:   protocol.DocumentUri(pathToURI(def.File)),
					Range: definitionRange(def),
				},
			})
		}
	}
	return results, nil
}
