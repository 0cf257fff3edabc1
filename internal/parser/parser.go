// Package parser wraps the tree-sitter Python grammar behind the small
// surface the analyzer needs: parse bytes, walk statements, read node
// text and positions.
package parser

import (
	"github.com/pytest-lsp/pytest-lsp/internal/core/errors"
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Parser parses Python source. It is safe for concurrent use; each Parse
// call creates its own tree-sitter parser since those are not shareable
// across goroutines.
type Parser struct {
	language *sitter.Language
}

func New() *Parser {
	return &Parser{language: sitter.NewLanguage(tree_sitter_python.Language())}
}

// Tree is a parsed Python file. Close must be called to release the
// underlying tree-sitter allocation.
type Tree struct {
	tree   *sitter.Tree
	Source []byte
}

// Parse parses content and returns the syntax tree. Files the grammar
// cannot produce a coherent tree for return a PARSE_ERROR; callers clear
// any prior index entries for the file and skip it.
func (p *Parser) Parse(content []byte) (*Tree, error) {
	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(p.language)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeParseError, "parse failed")
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		tree.Close()
		return nil, errors.New(errors.CodeParseError, "syntax error")
	}
	return &Tree{tree: tree, Source: content}, nil
}

func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

func (t *Tree) Close() {
	t.tree.Close()
}

// Text returns the source text of a node.
func (t *Tree) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(t.Source[node.StartByte():node.EndByte()])
}

// Line returns the 1-based line of a node's start.
func Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// Span returns the 0-based [start, end) character columns of a node on
// its start line.
func Span(node *sitter.Node) (start, end int) {
	return int(node.StartPosition().Column), int(node.EndPosition().Column)
}

// EndLine returns the 1-based line of a node's end.
func EndLine(node *sitter.Node) int {
	return int(node.EndPosition().Row) + 1
}

// NamedChildren returns the named children of a node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}

// ChildOfKind returns the first direct child with the given kind, or nil.
func ChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// HasChildOfKind reports whether a direct child with the given kind exists.
func HasChildOfKind(node *sitter.Node, kind string) bool {
	return ChildOfKind(node, kind) != nil
}
