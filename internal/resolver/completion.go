package resolver

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/pytest-lsp/pytest-lsp/internal/parser"
	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
)

// ContextKind classifies where a completion cursor sits.
type ContextKind int

const (
	ContextNone ContextKind = iota
	// ContextSignature is inside a test/fixture parameter list.
	ContextSignature
	// ContextBody is inside a test/fixture body; accepted completions
	// must also insert the name into the enclosing parameter list.
	ContextBody
	// ContextUsefixtures is on a line of a usefixtures decorator.
	ContextUsefixtures
	// ContextParametrize is inside a parametrize decorator.
	ContextParametrize
)

// Context describes the completion context at a cursor position.
type Context struct {
	Kind           ContextKind
	FunctionName   string
	FunctionLine   int
	IsFixture      bool
	DeclaredParams []string
}

// CompletionContext classifies a cursor position (1-based line). Outside
// decorators and test/fixture functions there is no fixture completion.
func (r *Resolver) CompletionContext(file string, line int) Context {
	file = r.index.Canonical(file)
	content, ok := r.index.Content(file)
	if !ok {
		return Context{}
	}
	tree, err := r.parser.Parse([]byte(content))
	if err != nil {
		return Context{}
	}
	defer tree.Close()

	if ctx, ok := r.decoratorContext(tree, tree.Root(), line); ok {
		return ctx
	}
	if ctx, ok := r.functionContext(tree, tree.Root(), content, line); ok {
		return ctx
	}
	return Context{}
}

func (r *Resolver) decoratorContext(tree *parser.Tree, block *sitter.Node, line int) (Context, bool) {
	for _, stmt := range parser.NamedChildren(block) {
		switch stmt.Kind() {
		case "decorated_definition":
			for i := uint(0); i < stmt.ChildCount(); i++ {
				dec := stmt.Child(i)
				if dec.Kind() != "decorator" {
					continue
				}
				if line < parser.Line(dec) || line > parser.EndLine(dec) {
					continue
				}
				if pytestsyntax.IsPytestMark(dec, tree.Source, "usefixtures") {
					return Context{Kind: ContextUsefixtures}, true
				}
				if pytestsyntax.IsPytestMark(dec, tree.Source, "parametrize") {
					return Context{Kind: ContextParametrize}, true
				}
			}
			if def := stmt.ChildByFieldName("definition"); def != nil && def.Kind() == "class_definition" {
				if body := def.ChildByFieldName("body"); body != nil {
					if ctx, ok := r.decoratorContext(tree, body, line); ok {
						return ctx, true
					}
				}
			}
		case "class_definition":
			if body := stmt.ChildByFieldName("body"); body != nil {
				if ctx, ok := r.decoratorContext(tree, body, line); ok {
					return ctx, true
				}
			}
		}
	}
	return Context{}, false
}

func (r *Resolver) functionContext(tree *parser.Tree, block *sitter.Node, content string, line int) (Context, bool) {
	for _, stmt := range parser.NamedChildren(block) {
		funcDef := stmt
		var decorated *sitter.Node
		if stmt.Kind() == "decorated_definition" {
			decorated = stmt
			funcDef = stmt.ChildByFieldName("definition")
			if funcDef == nil {
				continue
			}
		}

		switch funcDef.Kind() {
		case "class_definition":
			if body := funcDef.ChildByFieldName("body"); body != nil {
				if ctx, ok := r.functionContext(tree, body, content, line); ok {
					return ctx, true
				}
			}
		case "function_definition":
			if line < parser.Line(funcDef) || line > parser.EndLine(funcDef) {
				continue
			}
			name := tree.Text(funcDef.ChildByFieldName("name"))
			isFixture := decorated != nil && hasFixtureDecorator(tree, decorated)
			if !isFixture && !pytestsyntax.IsTestName(name) {
				continue
			}

			var params []string
			if p := funcDef.ChildByFieldName("parameters"); p != nil {
				for _, node := range parser.NamedChildren(p) {
					switch node.Kind() {
					case "identifier":
						params = append(params, tree.Text(node))
					case "typed_parameter":
						if id := node.NamedChild(0); id != nil && id.Kind() == "identifier" {
							params = append(params, tree.Text(id))
						}
					case "default_parameter", "typed_default_parameter":
						if n := node.ChildByFieldName("name"); n != nil {
							params = append(params, tree.Text(n))
						}
					}
				}
			}

			funcLine := parser.Line(funcDef)
			ctx := Context{
				FunctionName:   name,
				FunctionLine:   funcLine,
				IsFixture:      isFixture,
				DeclaredParams: params,
			}
			if line <= signatureEndLine(content, funcLine) {
				ctx.Kind = ContextSignature
			} else {
				ctx.Kind = ContextBody
			}
			return ctx, true
		}
	}
	return Context{}, false
}

func hasFixtureDecorator(tree *parser.Tree, decorated *sitter.Node) bool {
	for i := uint(0); i < decorated.ChildCount(); i++ {
		dec := decorated.Child(i)
		if dec.Kind() == "decorator" && pytestsyntax.IsFixture(dec, tree.Source) {
			return true
		}
	}
	return false
}
