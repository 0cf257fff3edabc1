package analyzer

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/parser"
)

// collectLocals records every name bound inside a function body together
// with the 1-based line of its earliest binding. A name is a local
// variable from that binding's line onward.
func (fe *fileExtraction) collectLocals(block *sitter.Node, locals map[string]int) {
	for _, stmt := range parser.NamedChildren(block) {
		switch stmt.Kind() {
		case "expression_statement":
			for _, expr := range parser.NamedChildren(stmt) {
				switch expr.Kind() {
				case "assignment", "augmented_assignment":
					fe.bindTargets(expr.ChildByFieldName("left"), parser.Line(expr), locals)
				}
			}
		case "for_statement":
			fe.bindTargets(stmt.ChildByFieldName("left"), parser.Line(stmt), locals)
			fe.collectLocalsOf(stmt, locals, "body", "alternative")
		case "while_statement":
			fe.collectLocalsOf(stmt, locals, "body", "alternative")
		case "if_statement":
			fe.collectLocalsOf(stmt, locals, "consequence")
			for _, clause := range parser.NamedChildren(stmt) {
				if clause.Kind() == "elif_clause" || clause.Kind() == "else_clause" {
					fe.collectLocalsOf(clause, locals, "consequence", "body")
				}
			}
		case "with_statement":
			fe.bindWithItems(stmt, locals)
			fe.collectLocalsOf(stmt, locals, "body")
		case "try_statement":
			fe.collectLocalsOf(stmt, locals, "body")
			for _, clause := range parser.NamedChildren(stmt) {
				switch clause.Kind() {
				case "except_clause", "else_clause", "finally_clause":
					if body := parser.ChildOfKind(clause, "block"); body != nil {
						fe.collectLocals(body, locals)
					}
				}
			}
		}
	}
}

func (fe *fileExtraction) collectLocalsOf(node *sitter.Node, locals map[string]int, fields ...string) {
	for _, field := range fields {
		body := node.ChildByFieldName(field)
		if body != nil && body.Kind() == "else_clause" {
			body = body.ChildByFieldName("body")
		}
		if body != nil {
			fe.collectLocals(body, locals)
		}
	}
}

func (fe *fileExtraction) bindWithItems(with *sitter.Node, locals map[string]int) {
	clause := parser.ChildOfKind(with, "with_clause")
	if clause == nil {
		return
	}
	for _, item := range parser.NamedChildren(clause) {
		value := item.ChildByFieldName("value")
		if value == nil || value.Kind() != "as_pattern" {
			continue
		}
		if alias := value.ChildByFieldName("alias"); alias != nil {
			fe.bindTargets(alias, parser.Line(item), locals)
		}
	}
}

// bindTargets registers each identifier in an assignment target
// (identifier, tuple, list, starred) at the given line, keeping the
// earliest line per name.
func (fe *fileExtraction) bindTargets(target *sitter.Node, line int, locals map[string]int) {
	fe.collectTargetNames(target, func(name string, _ *sitter.Node) {
		if prev, ok := locals[name]; !ok || line < prev {
			locals[name] = line
		}
	})
}

func (fe *fileExtraction) collectTargetNames(target *sitter.Node, emit func(string, *sitter.Node)) {
	if target == nil {
		return
	}
	switch target.Kind() {
	case "identifier":
		emit(fe.tree.Text(target), target)
	case "pattern_list", "tuple_pattern", "list_pattern", "as_pattern_target", "expression_list":
		for _, child := range parser.NamedChildren(target) {
			fe.collectTargetNames(child, emit)
		}
	case "list_splat_pattern":
		fe.collectTargetNames(target.NamedChild(0), emit)
	}
	// Attribute and subscript targets bind no new local name.
}

// walkBodyNames walks the Name expressions of a test or fixture body.
// Each name that resolves to an available fixture, is not a declared
// parameter, and is not a local bound on a line at or before the
// reference becomes both a usage and an undeclared-fixture entry.
func (fe *fileExtraction) walkBodyNames(body *sitter.Node, declared map[string]bool, locals map[string]int, funcName string, funcLine int) {
	var visit func(node *sitter.Node)
	visit = func(node *sitter.Node) {
		switch node.Kind() {
		case "identifier":
			fe.recordBodyName(node, declared, locals, funcName, funcLine)
			return
		case "function_definition", "class_definition", "decorated_definition", "lambda":
			// Nested scopes are not analyzed.
			return
		case "string", "integer", "float", "comment":
			return
		case "attribute":
			// Only the object side can be a fixture reference.
			visit(node.ChildByFieldName("object"))
			return
		case "keyword_argument":
			if value := node.ChildByFieldName("value"); value != nil {
				visit(value)
			}
			return
		case "assignment", "augmented_assignment":
			if right := node.ChildByFieldName("right"); right != nil {
				visit(right)
			}
			return
		case "for_statement":
			if right := node.ChildByFieldName("right"); right != nil {
				visit(right)
			}
			if b := node.ChildByFieldName("body"); b != nil {
				visit(b)
			}
			if alt := node.ChildByFieldName("alternative"); alt != nil {
				visit(alt)
			}
			return
		case "as_pattern":
			if value := node.NamedChild(0); value != nil {
				visit(value)
			}
			return
		}
		for _, child := range parser.NamedChildren(node) {
			visit(child)
		}
	}
	visit(body)
}

func (fe *fileExtraction) recordBodyName(node *sitter.Node, declared map[string]bool, locals map[string]int, funcName string, funcLine int) {
	name := fe.tree.Text(node)
	if declared[name] {
		return
	}
	line := parser.Line(node)
	if boundAt, ok := locals[name]; ok && boundAt <= line {
		return
	}
	if !fe.available(name) {
		return
	}

	start, end := parser.Span(node)
	fe.usages = append(fe.usages, fixture.Usage{
		Name:      name,
		File:      fe.path,
		Line:      line,
		StartChar: start,
		EndChar:   end,
	})
	fe.undeclared = append(fe.undeclared, fixture.Undeclared{
		Name:        name,
		File:        fe.path,
		Line:        line,
		StartChar:   start,
		EndChar:     end,
		FuncName:    funcName,
		FuncDefLine: funcLine,
	})
}
