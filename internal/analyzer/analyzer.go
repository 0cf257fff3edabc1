// Package analyzer extracts fixture definitions, usages, and
// undeclared-fixture references from a single Python file and commits
// them to the index.
package analyzer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/pytest-lsp/pytest-lsp/internal/core/errors"
	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/observability"
	"github.com/pytest-lsp/pytest-lsp/internal/parser"
	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
	"github.com/pytest-lsp/pytest-lsp/internal/resolver"
)

type Analyzer struct {
	parser *parser.Parser
	index  *index.Index
}

func New(ix *index.Index) *Analyzer {
	return &Analyzer{parser: parser.New(), index: ix}
}

// Analyze replaces every index entry attributed to path with the results
// of analyzing content. On a parse error the prior entries are cleared so
// stale data does not linger, and a PARSE_ERROR is returned.
func (a *Analyzer) Analyze(ctx context.Context, path, content string) error {
	_, span := observability.StartSpan(ctx, "analyze")
	defer span.End()
	start := time.Now()
	defer func() { observability.AnalyzeDuration.Observe(time.Since(start).Seconds()) }()

	canonical := a.index.Canonical(path)

	tree, err := a.parser.Parse([]byte(content))
	if err != nil {
		slog.Debug("parse failed", "path", canonical, "error", err)
		observability.ParseErrorsTotal.Inc()
		a.index.ClearFile(canonical, content)
		return errors.AddContext(err, errors.CtxPath, canonical)
	}
	defer tree.Close()

	fe := &fileExtraction{
		tree:       tree,
		index:      a.index,
		path:       canonical,
		thirdParty: resolver.IsThirdPartyPath(canonical),
		localDefs:  make(map[string]bool),
	}
	fe.collectModuleNames(tree.Root())

	// Definitions are collected before usages so that a parameter or body
	// reference sees every fixture of its own file regardless of
	// declaration order.
	fe.phase = phaseDefinitions
	fe.visitBlock(tree.Root())
	fe.phase = phaseUsages
	fe.visitBlock(tree.Root())

	a.index.ReplaceFile(canonical, content, fe.defs, fe.usages, fe.undeclared)
	return nil
}

const (
	phaseDefinitions = iota
	phaseUsages
)

// fileExtraction accumulates the entries of one Analyze call.
type fileExtraction struct {
	tree       *parser.Tree
	index      *index.Index
	path       string
	thirdParty bool
	phase      int

	// moduleNames are module-level bindings (imports, plain functions,
	// classes, assignments) that must never be flagged as undeclared
	// fixtures in function bodies.
	moduleNames map[string]bool

	// localDefs are the fixture names defined in this file, filled during
	// the definition phase.
	localDefs map[string]bool

	defs       []fixture.Definition
	usages     []fixture.Usage
	undeclared []fixture.Undeclared
}

// available reports whether a fixture name is visible from this file:
// defined here, or reachable through the index (conftest ancestors and
// third-party plugins).
func (fe *fileExtraction) available(name string) bool {
	return fe.localDefs[name] || resolver.Available(fe.index, fe.path, name)
}

// collectModuleNames walks top-level statements (including class bodies)
// for names that shadow fixtures inside function bodies.
func (fe *fileExtraction) collectModuleNames(root *sitter.Node) {
	fe.moduleNames = make(map[string]bool)
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		for _, stmt := range parser.NamedChildren(node) {
			switch stmt.Kind() {
			case "import_statement", "import_from_statement":
				fe.collectImportedNames(stmt)
			case "function_definition":
				fe.moduleNames[fe.tree.Text(stmt.ChildByFieldName("name"))] = true
			case "decorated_definition":
				def := stmt.ChildByFieldName("definition")
				if def == nil {
					continue
				}
				if def.Kind() == "function_definition" && !fe.hasFixtureDecorator(stmt) {
					fe.moduleNames[fe.tree.Text(def.ChildByFieldName("name"))] = true
				}
				if def.Kind() == "class_definition" {
					fe.moduleNames[fe.tree.Text(def.ChildByFieldName("name"))] = true
				}
			case "class_definition":
				fe.moduleNames[fe.tree.Text(stmt.ChildByFieldName("name"))] = true
				if body := stmt.ChildByFieldName("body"); body != nil {
					walk(body)
				}
			case "expression_statement":
				for _, expr := range parser.NamedChildren(stmt) {
					if expr.Kind() == "assignment" || expr.Kind() == "augmented_assignment" {
						fe.collectTargetNames(expr.ChildByFieldName("left"), func(name string, _ *sitter.Node) {
							fe.moduleNames[name] = true
						})
					}
				}
			}
		}
	}
	walk(root)
}

func (fe *fileExtraction) collectImportedNames(stmt *sitter.Node) {
	// `from X import a, b` binds a and b, not X.
	moduleName := stmt.ChildByFieldName("module_name")
	var visit func(node *sitter.Node)
	visit = func(node *sitter.Node) {
		switch node.Kind() {
		case "aliased_import":
			if alias := node.ChildByFieldName("alias"); alias != nil {
				fe.moduleNames[fe.tree.Text(alias)] = true
				return
			}
		case "dotted_name":
			// `import a.b` binds `a`; `from m import x` yields bare names.
			if first := node.NamedChild(0); first != nil {
				fe.moduleNames[fe.tree.Text(first)] = true
			}
			return
		case "identifier":
			fe.moduleNames[fe.tree.Text(node)] = true
			return
		case "wildcard_import":
			return
		}
		for _, child := range parser.NamedChildren(node) {
			visit(child)
		}
	}
	for _, child := range parser.NamedChildren(stmt) {
		if moduleName != nil && child.StartByte() == moduleName.StartByte() {
			continue
		}
		visit(child)
	}
}

// visitBlock processes the statements of a module or class body.
func (fe *fileExtraction) visitBlock(block *sitter.Node) {
	for _, stmt := range parser.NamedChildren(block) {
		switch stmt.Kind() {
		case "decorated_definition":
			fe.visitDecorated(stmt)
		case "function_definition":
			fe.visitFunction(stmt, nil)
		case "class_definition":
			if body := stmt.ChildByFieldName("body"); body != nil {
				fe.visitBlock(body)
			}
		case "expression_statement":
			if fe.phase != phaseDefinitions {
				continue
			}
			for _, expr := range parser.NamedChildren(stmt) {
				if expr.Kind() == "assignment" {
					fe.visitAssignmentFixture(expr)
				}
			}
		}
	}
}

func (fe *fileExtraction) visitDecorated(stmt *sitter.Node) {
	def := stmt.ChildByFieldName("definition")
	if def == nil {
		return
	}

	decorators := fe.decoratorsOf(stmt)

	switch def.Kind() {
	case "function_definition":
		fe.visitFunction(def, decorators)
	case "class_definition":
		if fe.phase == phaseUsages {
			for _, dec := range decorators {
				fe.recordUsefixtures(dec)
				fe.recordParametrizeIndirect(dec)
			}
		}
		if body := def.ChildByFieldName("body"); body != nil {
			fe.visitBlock(body)
		}
	}
}

func (fe *fileExtraction) decoratorsOf(decorated *sitter.Node) []*sitter.Node {
	var decs []*sitter.Node
	for i := uint(0); i < decorated.ChildCount(); i++ {
		child := decorated.Child(i)
		if child.Kind() == "decorator" {
			decs = append(decs, child)
		}
	}
	return decs
}

func (fe *fileExtraction) hasFixtureDecorator(decorated *sitter.Node) bool {
	for _, dec := range fe.decoratorsOf(decorated) {
		if pytestsyntax.IsFixture(dec, fe.tree.Source) {
			return true
		}
	}
	return false
}

// visitFunction handles one sync or async function definition: decorator
// usages, an optional fixture definition, parameter usages, and the body
// walk for undeclared references.
func (fe *fileExtraction) visitFunction(funcDef *sitter.Node, decorators []*sitter.Node) {
	nameNode := funcDef.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	funcName := fe.tree.Text(nameNode)

	var fixtureDec *sitter.Node
	for _, dec := range decorators {
		if pytestsyntax.IsFixture(dec, fe.tree.Source) {
			fixtureDec = dec
			break
		}
	}
	isFixture := fixtureDec != nil
	isTest := pytestsyntax.IsTestName(funcName)

	if fe.phase == phaseDefinitions {
		if !isFixture {
			return
		}
		fixtureName := pytestsyntax.FixtureName(fixtureDec, fe.tree.Source)
		if fixtureName == "" {
			fixtureName = funcName
		}
		start, end := parser.Span(nameNode)
		rawDoc := fe.docstringOf(funcDef)
		fe.localDefs[fixtureName] = true
		fe.defs = append(fe.defs, fixture.Definition{
			Name:         fixtureName,
			File:         fe.path,
			Line:         parser.Line(nameNode),
			NameSpan:     fixture.Span{Start: start, End: end},
			Docstring:    pytestsyntax.CleanDocstring(rawDoc),
			RawDoc:       rawDoc,
			Signature:    fe.signatureOf(funcDef, funcName),
			Async:        parser.HasChildOfKind(funcDef, "async"),
			Autouse:      pytestsyntax.FixtureAutouse(fixtureDec, fe.tree.Source),
			IsThirdParty: fe.thirdParty,
		})
		return
	}

	for _, dec := range decorators {
		fe.recordUsefixtures(dec)
		fe.recordParametrizeIndirect(dec)
	}

	if !isFixture && !isTest {
		return
	}

	params := fe.parameterNames(funcDef.ChildByFieldName("parameters"))

	// Parameters are usage sites when they name a fixture available to
	// this file. Multi-line signatures work because each parameter node
	// carries its own position.
	declared := map[string]bool{"self": true, "cls": true, "request": true}
	if isFixture {
		declared[funcName] = true
	}
	for _, p := range params {
		name := fe.tree.Text(p)
		declared[name] = true
		if name == "self" || name == "cls" || name == "request" {
			continue
		}
		if !fe.available(name) {
			continue
		}
		start, end := parser.Span(p)
		fe.usages = append(fe.usages, fixture.Usage{
			Name:      name,
			File:      fe.path,
			Line:      parser.Line(p),
			StartChar: start,
			EndChar:   end,
		})
	}

	body := funcDef.ChildByFieldName("body")
	if body == nil {
		return
	}
	locals := map[string]int{}
	for name := range fe.moduleNames {
		locals[name] = 0
	}
	fe.collectLocals(body, locals)
	fe.walkBodyNames(body, declared, locals, funcName, parser.Line(funcDef))
}

// visitAssignmentFixture records the pytest-mock idiom
// `name = pytest.fixture(...)(inner)` as a definition spanning the LHS
// name.
func (fe *fileExtraction) visitAssignmentFixture(assign *sitter.Node) {
	right := assign.ChildByFieldName("right")
	left := assign.ChildByFieldName("left")
	if right == nil || left == nil || right.Kind() != "call" {
		return
	}
	inner := right.ChildByFieldName("function")
	if inner == nil || inner.Kind() != "call" || !pytestsyntax.IsFixture(inner, fe.tree.Source) {
		return
	}
	fe.collectTargetNames(left, func(name string, node *sitter.Node) {
		start, end := parser.Span(node)
		fe.localDefs[name] = true
		fe.defs = append(fe.defs, fixture.Definition{
			Name:         name,
			File:         fe.path,
			Line:         parser.Line(node),
			NameSpan:     fixture.Span{Start: start, End: end},
			Signature:    name + "(...)",
			IsThirdParty: fe.thirdParty,
		})
	})
}

func (fe *fileExtraction) recordUsefixtures(dec *sitter.Node) {
	for _, arg := range pytestsyntax.UsefixturesNames(dec, fe.tree.Source) {
		if !fe.available(arg.Text) {
			continue
		}
		fe.usages = append(fe.usages, fixture.Usage{
			Name:      arg.Text,
			File:      fe.path,
			Line:      arg.Line,
			StartChar: arg.Start,
			EndChar:   arg.End,
		})
	}
}

func (fe *fileExtraction) recordParametrizeIndirect(dec *sitter.Node) {
	for _, arg := range pytestsyntax.ParametrizeIndirectNames(dec, fe.tree.Source) {
		if !fe.available(arg.Text) {
			continue
		}
		line, start, end := arg.Line, arg.Start, arg.End
		if line == 0 {
			// Position inside the literal could not be extracted; fall
			// back to the decorator line.
			line = parser.Line(dec)
			start, _ = parser.Span(dec)
			end = start + len(arg.Text)
		}
		fe.usages = append(fe.usages, fixture.Usage{
			Name:      arg.Text,
			File:      fe.path,
			Line:      line,
			StartChar: start,
			EndChar:   end,
		})
	}
}

// parameterNames returns the identifier node of each formal parameter.
func (fe *fileExtraction) parameterNames(params *sitter.Node) []*sitter.Node {
	if params == nil {
		return nil
	}
	var out []*sitter.Node
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "identifier":
			out = append(out, p)
		case "typed_parameter":
			if id := p.NamedChild(0); id != nil && id.Kind() == "identifier" {
				out = append(out, id)
			}
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				out = append(out, name)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := p.NamedChild(0); id != nil && id.Kind() == "identifier" {
				out = append(out, id)
			}
		}
	}
	return out
}

func (fe *fileExtraction) docstringOf(funcDef *sitter.Node) string {
	body := funcDef.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Kind() != "string" {
		return ""
	}
	return fe.tree.Text(str)
}

// signatureOf reconstructs a one-line "name(params)" for hover, collapsing
// multi-line parameter lists.
func (fe *fileExtraction) signatureOf(funcDef *sitter.Node, name string) string {
	params := funcDef.ChildByFieldName("parameters")
	if params == nil {
		return name + "()"
	}
	text := strings.Join(strings.Fields(fe.tree.Text(params)), " ")
	text = strings.ReplaceAll(text, "( ", "(")
	text = strings.ReplaceAll(text, " )", ")")
	text = strings.TrimSuffix(strings.TrimSuffix(text, ")"), ",") + ")"
	return name + text
}
