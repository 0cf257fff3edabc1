package lspserver

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/resolver"
)

// textDocumentCompletion handles the textDocument/completion request.
// Fixture names are offered inside test/fixture signatures and bodies,
// usefixtures decorators, and parametrize decorators; nowhere else.
func (s *Server) textDocumentCompletion(_ *glsp.Context, params *protocol.CompletionParams) (any, error) {
	path := uriToPath(string(params.TextDocument.URI))
	cctx := s.resolver.CompletionContext(path, internalLine(params.Position))
	if cctx.Kind == resolver.ContextNone {
		return nil, nil
	}

	declared := make(map[string]bool, len(cctx.DeclaredParams))
	for _, p := range cctx.DeclaredParams {
		declared[p] = true
	}

	var items []protocol.CompletionItem
	for _, def := range s.resolver.AvailableFixtures(path) {
		switch cctx.Kind {
		case resolver.ContextSignature, resolver.ContextBody:
			if declared[def.Name] {
				continue
			}
		}

		item := s.completionItem(def)
		if cctx.Kind == resolver.ContextBody {
			// Accepting a body completion also declares the fixture as a
			// parameter of the enclosing function.
			if edit, ok := s.paramInsertionEdit(path, cctx.FunctionLine, def.Name); ok {
				item.AdditionalTextEdits = []protocol.TextEdit{edit}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Server) completionItem(def fixture.Definition) protocol.CompletionItem {
	kind := protocol.CompletionItemKindFunction
	detail := def.Signature
	return protocol.CompletionItem{
		Label:  def.Name,
		Kind:   &kind,
		Detail: &detail,
		Documentation: &protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s.hoverMarkdown(def),
		},
	}
}

// paramInsertionEdit builds the edit that inserts a fixture name into
// the parameter list of the function starting at funcLine. The insertion
// point is just after the last existing parameter, or inside the empty
// parentheses; a leading comma+space is prepended iff a parameter already
// exists.
func (s *Server) paramInsertionEdit(path string, funcLine int, name string) (protocol.TextEdit, bool) {
	point, ok := s.resolver.ParamInsertionPoint(path, funcLine)
	if !ok {
		return protocol.TextEdit{}, false
	}
	text := name
	if point.NeedsComma {
		text = ", " + name
	}
	pos := protocol.Position{Line: safeUint(point.Line - 1), Character: safeUint(point.Char)}
	return protocol.TextEdit{
		Range:   protocol.Range{Start: pos, End: pos},
		NewText: text,
	}, true
}
