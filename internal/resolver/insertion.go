package resolver

import "strings"

// ParamInsertion describes where to insert a new parameter into a
// function signature. Line is 1-based; Char is the 0-based column just
// after the last existing parameter (before any trailing comma), or of the
// closing parenthesis when the list is empty. NeedsComma is true when a
// parameter already exists, in which case the caller prepends ", " to the
// inserted name.
type ParamInsertion struct {
	Line       int
	Char       int
	NeedsComma bool
}

// signatureScanLimit bounds how far past the def line a signature may
// stretch before we give up looking for its closing `):`.
const signatureScanLimit = 10

// ParamInsertionPoint locates the insertion point for a new parameter in
// the signature starting at funcLine (1-based). Works on single- and
// multi-line signatures.
func (r *Resolver) ParamInsertionPoint(file string, funcLine int) (ParamInsertion, bool) {
	file = r.index.Canonical(file)
	content, ok := r.index.Content(file)
	if !ok {
		return ParamInsertion{}, false
	}
	lines := strings.Split(content, "\n")

	limit := funcLine + signatureScanLimit
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := funcLine - 1; i < limit; i++ {
		line := lines[i]
		closePos := strings.Index(line, "):")
		if closePos < 0 {
			continue
		}
		needsComma := signatureHasParams(lines, funcLine-1, i, closePos)
		row, col := i, closePos
		if needsComma {
			// Step back over blank space, line breaks and a trailing comma
			// to the end of the last parameter.
			for row > funcLine-1 && strings.TrimSpace(lines[row][:col]) == "" {
				row--
				col = len(lines[row])
			}
			prefix := strings.TrimRight(lines[row][:col], " \t\r")
			col = len(strings.TrimRight(strings.TrimSuffix(prefix, ","), " \t"))
		}
		return ParamInsertion{
			Line:       row + 1,
			Char:       col,
			NeedsComma: needsComma,
		}, true
	}
	return ParamInsertion{}, false
}

// signatureHasParams reports whether anything already sits between the
// opening parenthesis of the signature and the closing one at
// (closeLine, closePos). Both indexes are 0-based into lines.
func signatureHasParams(lines []string, defLine, closeLine, closePos int) bool {
	line := lines[closeLine]
	if openPos := strings.Index(line, "("); openPos >= 0 && openPos < closePos {
		return strings.TrimSpace(line[openPos+1:closePos]) != ""
	}

	// The opening parenthesis is on an earlier line.
	if strings.TrimSpace(line[:closePos]) != "" {
		return true
	}
	for i := defLine; i < closeLine; i++ {
		prev := lines[i]
		if openPos := strings.Index(prev, "("); openPos >= 0 {
			if strings.TrimSpace(prev[openPos+1:]) != "" {
				return true
			}
		} else if i > defLine && strings.TrimSpace(prev) != "" {
			return true
		}
	}
	return false
}

// signatureEndLine finds the 1-based line where the signature beginning
// at funcLine closes, falling back to funcLine when no `):` is found
// within the scan limit.
func signatureEndLine(content string, funcLine int) int {
	lines := strings.Split(content, "\n")
	limit := funcLine + signatureScanLimit
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := funcLine - 1; i < limit; i++ {
		if strings.Contains(lines[i], "):") {
			return i + 1
		}
	}
	return funcLine
}
