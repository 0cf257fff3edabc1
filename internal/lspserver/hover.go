package lspserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
)

// textDocumentHover handles the textDocument/hover request.
func (s *Server) textDocumentHover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	path := uriToPath(string(params.TextDocument.URI))
	def, ok := s.resolver.Resolve(context.Background(),
		path, internalLine(params.Position), int(params.Position.Character))
	if !ok {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s.hoverMarkdown(def),
		},
	}, nil
}

// hoverMarkdown renders the signature, source file, and dedented
// docstring of a fixture definition.
func (s *Server) hoverMarkdown(def fixture.Definition) string {
	var sb strings.Builder

	sb.WriteString("```python\n")
	if def.Async {
		sb.WriteString("async ")
	}
	fmt.Fprintf(&sb, "def %s\n```\n", def.Signature)

	fmt.Fprintf(&sb, "\n**Defined in:** `%s`\n", relativeTo(s.rootPath, def.File))

	if def.Docstring != "" {
		sb.WriteString("\n---\n\n```\n")
		sb.WriteString(def.Docstring)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}
