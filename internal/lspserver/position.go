package lspserver

import (
	"path/filepath"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
)

// lineSpanRange converts a 1-based internal line and a 0-based character
// span into a 0-based LSP range.
func lineSpanRange(line, startChar, endChar int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: safeUint(line - 1), Character: safeUint(startChar)},
		End:   protocol.Position{Line: safeUint(line - 1), Character: safeUint(endChar)},
	}
}

func definitionRange(def fixture.Definition) protocol.Range {
	return lineSpanRange(def.Line, def.NameSpan.Start, def.NameSpan.End)
}

func usageRange(u fixture.Usage) protocol.Range {
	return lineSpanRange(u.Line, u.StartChar, u.EndChar)
}

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n)
}

// internalLine converts a 0-based LSP line to the 1-based internal form.
func internalLine(pos protocol.Position) int {
	return int(pos.Line) + 1
}

// uriToPath converts a file:// URI to a filesystem path.
func uriToPath(uri string) string {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		return path
	}
	return uri
}

// pathToURI converts a filesystem path to a file:// URI.
func pathToURI(path string) string {
	if strings.HasPrefix(path, "/") {
		return "file://" + path
	}
	return path
}

// lineAt returns the 1-based line of content.
func lineAt(content string, line int) (string, bool) {
	if line < 1 {
		return "", false
	}
	lines := strings.Split(content, "\n")
	if line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

// relativeTo renders path relative to root when possible, for display.
func relativeTo(root, path string) string {
	if root == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
