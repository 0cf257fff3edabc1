// Package pytestsyntax recognizes the pytest decorator shapes and string
// conventions the analyzer depends on. All functions are pure over a
// tree-sitter node plus the source bytes; no state is kept.
package pytestsyntax

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// StringArg is a string literal argument with the position of its content
// (quotes excluded). Line is 1-based, Start/End are 0-based character
// columns forming a half-open range.
type StringArg struct {
	Text  string
	Line  int
	Start int
	End   int
}

func nodeText(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	return string(src[node.StartByte():node.EndByte()])
}

// DecoratorExpr returns the expression of a decorator node, skipping the
// leading "@". For any other node it returns the node unchanged, so the
// helpers below also accept bare expressions (the assignment form).
func DecoratorExpr(node *sitter.Node) *sitter.Node {
	if node == nil || node.Kind() != "decorator" {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "@" {
			return child
		}
	}
	return nil
}

// IsFixture reports whether a decorator expression is a pytest fixture
// decorator: `pytest.fixture`, bare `fixture`, or either one called.
func IsFixture(node *sitter.Node, src []byte) bool {
	expr := DecoratorExpr(node)
	if expr == nil {
		return false
	}
	switch expr.Kind() {
	case "identifier":
		return nodeText(expr, src) == "fixture"
	case "attribute":
		obj := expr.ChildByFieldName("object")
		attr := expr.ChildByFieldName("attribute")
		return obj != nil && obj.Kind() == "identifier" &&
			nodeText(obj, src) == "pytest" && nodeText(attr, src) == "fixture"
	case "call":
		return IsFixture(expr.ChildByFieldName("function"), src)
	}
	return false
}

// FixtureName returns the `name="..."` keyword override of a fixture
// decorator, or "" when the decorator carries none.
func FixtureName(node *sitter.Node, src []byte) string {
	call := DecoratorExpr(node)
	if call == nil || call.Kind() != "call" || !IsFixture(call, src) {
		return ""
	}
	if value := keywordValue(call, src, "name"); value != nil && value.Kind() == "string" {
		if content, _ := stringContent(value, src); content != nil {
			return nodeText(content, src)
		}
	}
	return ""
}

// FixtureAutouse reports whether a fixture decorator passes autouse=True.
func FixtureAutouse(node *sitter.Node, src []byte) bool {
	call := DecoratorExpr(node)
	if call == nil || call.Kind() != "call" || !IsFixture(call, src) {
		return false
	}
	value := keywordValue(call, src, "autouse")
	return value != nil && value.Kind() == "true"
}

// IsPytestMark reports whether a decorator expression is
// `pytest.mark.<tag>` or `mark.<tag>` (optionally called). It underlies
// the usefixtures and parametrize recognizers.
func IsPytestMark(node *sitter.Node, src []byte, tag string) bool {
	expr := DecoratorExpr(node)
	if expr == nil {
		return false
	}
	switch expr.Kind() {
	case "call":
		return IsPytestMark(expr.ChildByFieldName("function"), src, tag)
	case "attribute":
		if nodeText(expr.ChildByFieldName("attribute"), src) != tag {
			return false
		}
		obj := expr.ChildByFieldName("object")
		if obj == nil {
			return false
		}
		switch obj.Kind() {
		case "attribute":
			inner := obj.ChildByFieldName("object")
			return nodeText(obj.ChildByFieldName("attribute"), src) == "mark" &&
				inner != nil && inner.Kind() == "identifier" && nodeText(inner, src) == "pytest"
		case "identifier":
			// `from pytest import mark` style.
			return nodeText(obj, src) == "mark"
		}
	}
	return false
}

// UsefixturesNames extracts the string arguments of a
// `@pytest.mark.usefixtures("a", "b")` decorator along with the position
// of each string's content.
func UsefixturesNames(node *sitter.Node, src []byte) []StringArg {
	call := DecoratorExpr(node)
	if call == nil || call.Kind() != "call" || !IsPytestMark(call, src, "usefixtures") {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}

	var names []StringArg
	for i := uint(0); i < args.ChildCount(); i++ {
		arg := args.Child(i)
		if arg.Kind() != "string" {
			continue
		}
		content, ok := stringContent(arg, src)
		if !ok {
			continue
		}
		names = append(names, StringArg{
			Text:  nodeText(content, src),
			Line:  int(content.StartPosition().Row) + 1,
			Start: int(content.StartPosition().Column),
			End:   int(content.EndPosition().Column),
		})
	}
	return names
}

// ParametrizeIndirectNames extracts the indirect parameter names of a
// `@pytest.mark.parametrize(...)` decorator. With indirect=True every
// comma-separated name of the first string argument is indirect; with
// indirect=[...] only the listed names are. Positions point at each name
// inside the first-argument string; when the name cannot be located there
// (multi-line literal, odd spacing) the caller falls back to the
// decorator line by checking Line == 0.
func ParametrizeIndirectNames(node *sitter.Node, src []byte) []StringArg {
	call := DecoratorExpr(node)
	if call == nil || call.Kind() != "call" || !IsPytestMark(call, src, "parametrize") {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}

	indirect := keywordValue(call, src, "indirect")
	if indirect == nil {
		return nil
	}

	first := firstPositionalArg(args)
	if first == nil || first.Kind() != "string" {
		// Non-literal parameter lists are not analyzed.
		return nil
	}
	content, ok := stringContent(first, src)
	if !ok {
		return nil
	}
	paramText := nodeText(content, src)
	params := splitParams(paramText)

	var wanted []string
	switch indirect.Kind() {
	case "true":
		wanted = params
	case "list":
		for i := uint(0); i < indirect.ChildCount(); i++ {
			el := indirect.Child(i)
			if el.Kind() != "string" {
				continue
			}
			if c, ok := stringContent(el, src); ok {
				name := nodeText(c, src)
				for _, p := range params {
					if p == name {
						wanted = append(wanted, name)
						break
					}
				}
			}
		}
	default:
		return nil
	}

	var names []StringArg
	for _, name := range wanted {
		names = append(names, locateInParamString(name, paramText, content))
	}
	return names
}

// locateInParamString finds name inside the comma-separated parameter
// literal and produces its content-relative position. Multi-line literals
// yield a zero Line so callers can fall back to the decorator line.
func locateInParamString(name, paramText string, content *sitter.Node) StringArg {
	offset := paramNameOffset(paramText, name)
	if offset < 0 || strings.Contains(paramText[:offset], "\n") {
		return StringArg{Text: name}
	}
	start := int(content.StartPosition().Column) + offset
	return StringArg{
		Text:  name,
		Line:  int(content.StartPosition().Row) + 1,
		Start: start,
		End:   start + len(name),
	}
}

// paramNameOffset returns the byte offset of name within a comma-separated
// parameter string, or -1.
func paramNameOffset(paramText, name string) int {
	offset := 0
	for _, segment := range strings.Split(paramText, ",") {
		trimmed := strings.TrimSpace(segment)
		if trimmed == name {
			return offset + strings.Index(segment, trimmed)
		}
		offset += len(segment) + 1
	}
	return -1
}

func splitParams(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstPositionalArg(args *sitter.Node) *sitter.Node {
	for i := uint(0); i < args.ChildCount(); i++ {
		child := args.Child(i)
		switch child.Kind() {
		case "(", ")", ",", "comment", "keyword_argument":
			continue
		}
		return child
	}
	return nil
}

func keywordValue(call *sitter.Node, src []byte, name string) *sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := uint(0); i < args.ChildCount(); i++ {
		child := args.Child(i)
		if child.Kind() != "keyword_argument" {
			continue
		}
		if nodeText(child.ChildByFieldName("name"), src) == name {
			return child.ChildByFieldName("value")
		}
	}
	return nil
}

// stringContent returns the string_content child of a string literal node.
// Empty literals have no content node and report false.
func stringContent(str *sitter.Node, src []byte) (*sitter.Node, bool) {
	for i := uint(0); i < str.ChildCount(); i++ {
		child := str.Child(i)
		if child.Kind() == "string_content" {
			return child, true
		}
	}
	return nil, false
}
