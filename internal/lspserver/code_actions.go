package lspserver

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
)

// textDocumentCodeAction handles the textDocument/codeAction request.
// Every undeclared-fixture diagnostic in the requested range gets a
// quick fix that adds the fixture to the enclosing function's parameter
// list.
func (s *Server) textDocumentCodeAction(_ *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	if len(params.Context.Only) > 0 && !kindsContain(params.Context.Only, protocol.CodeActionKindQuickFix) {
		return nil, nil
	}

	uri := string(params.TextDocument.URI)
	canonical := s.index.Canonical(uriToPath(uri))

	var actions []protocol.CodeAction
	for _, entry := range s.index.UndeclaredFor(canonical) {
		entryLine := safeUint(entry.Line - 1)
		if entryLine < params.Range.Start.Line || entryLine > params.Range.End.Line {
			continue
		}
		if action, ok := s.addParameterAction(uri, canonical, entry); ok {
			actions = append(actions, action)
		}
	}

	if len(actions) == 0 {
		return nil, nil
	}
	return actions, nil
}

// addParameterAction builds the quick fix for one undeclared entry.
// Works on single- and multi-line signatures through the shared
// insertion rules.
func (s *Server) addParameterAction(uri, canonical string, entry fixture.Undeclared) (protocol.CodeAction, bool) {
	edit, ok := s.paramInsertionEdit(canonical, entry.FuncDefLine, entry.Name)
	if !ok {
		return protocol.CodeAction{}, false
	}

	severity := protocol.DiagnosticSeverityWarning
	source := diagnosticSource
	diag := protocol.Diagnostic{
		Range:    lineSpanRange(entry.Line, entry.StartChar, entry.EndChar),
		Severity: &severity,
		Source:   &source,
		Message:  fmt.Sprintf("'%s' used but not declared as parameter", entry.Name),
	}

	kind := protocol.CodeActionKindQuickFix
	return protocol.CodeAction{
		Title:       fmt.Sprintf("Add '%s' fixture parameter", entry.Name),
		Kind:        &kind,
		Diagnostics: []protocol.Diagnostic{diag},
		Edit: &protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{
				protocol.DocumentUri(uri): {edit},
			},
		},
	}, true
}

func kindsContain(kinds []protocol.CodeActionKind, want protocol.CodeActionKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
