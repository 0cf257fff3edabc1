package pytestsyntax

import "strings"

// CleanDocstring strips the surrounding quotes from a docstring literal and
// dedents it the way Python's inspect.cleandoc does: the first line is
// trimmed, the remaining lines lose their minimum common leading
// whitespace, and leading/trailing blank lines are dropped. Interior
// structure (fenced code blocks, lists) is preserved.
func CleanDocstring(raw string) string {
	text := stripQuotes(raw)

	lines := strings.Split(text, "\n")

	minIndent := -1
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent < 0 {
		minIndent = 0
	}

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		switch {
		case i == 0:
			out = append(out, strings.TrimSpace(line))
		case strings.TrimSpace(line) == "":
			out = append(out, "")
		case len(line) > minIndent:
			out = append(out, strings.TrimRight(line[minIndent:], " \t"))
		default:
			out = append(out, strings.TrimSpace(line))
		}
	}

	start, end := 0, len(out)
	for start < end && out[start] == "" {
		start++
	}
	for end > start && out[end-1] == "" {
		end--
	}
	return strings.Join(out[start:end], "\n")
}

func stripQuotes(raw string) string {
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	for _, q := range []string{`"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2 {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

// IdentifierAt returns the maximal identifier run covering the 0-based
// character offset in a line of text, with its half-open [start, end)
// span. ok is false when the offset is outside the line or not inside an
// identifier.
func IdentifierAt(line string, char int) (name string, start, end int, ok bool) {
	if char < 0 || char >= len(line) || !isIdentChar(line[char]) {
		return "", 0, 0, false
	}

	start = char
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	end = char + 1
	for end < len(line) && isIdentChar(line[end]) {
		end++
	}

	// Identifiers cannot start with a digit.
	if line[start] >= '0' && line[start] <= '9' {
		return "", 0, 0, false
	}
	return line[start:end], start, end, true
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// IsPythonIdentifier reports whether s is a valid ASCII Python identifier.
// Used to validate rename targets.
func IsPythonIdentifier(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}
