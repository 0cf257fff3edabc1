// Package resolver implements pytest's fixture priority rules over the
// index: same file first, then the nearest conftest.py walking up the
// directory tree, then third-party plugins. All lookups are deterministic
// regardless of scan order.
package resolver

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/observability"
	"github.com/pytest-lsp/pytest-lsp/internal/parser"
	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
)

type Resolver struct {
	index  *index.Index
	parser *parser.Parser
}

func New(ix *index.Index) *Resolver {
	return &Resolver{index: ix, parser: parser.New()}
}

// Resolve maps a cursor position (1-based line, 0-based character) in a
// file to the fixture definition it denotes. The cursor may sit on a
// definition name, a parameter, a usefixtures string, or a body
// reference. Self-referential overrides are disambiguated by character
// position: on the definition's own name token the definition itself is
// returned; on the shadowing parameter the next definition up the chain
// is.
func (r *Resolver) Resolve(ctx context.Context, file string, line, char int) (fixture.Definition, bool) {
	_, span := observability.StartSpan(ctx, "resolve")
	defer span.End()
	start := time.Now()
	defer func() { observability.ResolveDuration.Observe(time.Since(start).Seconds()) }()

	file = r.index.Canonical(file)
	lineText, ok := r.lineText(file, line)
	if !ok {
		return fixture.Definition{}, false
	}
	name, _, _, ok := pytestsyntax.IdentifierAt(lineText, char)
	if !ok {
		return fixture.Definition{}, false
	}

	defs := r.index.DefinitionsFor(name)
	if len(defs) == 0 {
		return fixture.Definition{}, false
	}

	// The cursor on a definition's own name token is that definition.
	for _, def := range defs {
		if def.File == file && def.Line == line &&
			char >= def.NameSpan.Start && char < def.NameSpan.End {
			return def, true
		}
	}

	return r.closest(file, defs, &position{line: line})
}

// ResolveUsage maps a recorded usage to its definition, applying the same
// self-override exclusion as cursor resolution.
func (r *Resolver) ResolveUsage(usage fixture.Usage) (fixture.Definition, bool) {
	defs := r.index.DefinitionsFor(usage.Name)
	if len(defs) == 0 {
		return fixture.Definition{}, false
	}
	return r.closest(usage.File, defs, &position{line: usage.Line})
}

type position struct {
	line int
}

// closest applies the priority chain for a reference at pos.line in file.
// Definitions on the reference's own line are skipped: a parameter of
// `def cli_runner(cli_runner)` must resolve to the parent, not itself.
func (r *Resolver) closest(file string, defs []fixture.Definition, pos *position) (fixture.Definition, bool) {
	// Priority 1: same file, nearest definition above the reference.
	// Largest line wins; same-line ties go to the largest span start.
	var best fixture.Definition
	found := false
	for _, def := range defs {
		if def.File != file || def.Line >= pos.line {
			continue
		}
		if !found || def.Line > best.Line ||
			(def.Line == best.Line && def.NameSpan.Start > best.NameSpan.Start) {
			best, found = def, true
		}
	}
	if found {
		return best, true
	}

	// Priority 2: nearest conftest.py on the parent chain. Ties within a
	// directory go to the largest line (the later definition shadows).
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		conftest := filepath.Join(dir, "conftest.py")
		for _, def := range defs {
			if def.File != conftest {
				continue
			}
			if def.File == file && def.Line >= pos.line {
				continue
			}
			if !found || def.Line > best.Line {
				best, found = def, true
			}
		}
		if found {
			return best, true
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}

	// Priority 3: third-party plugins, lexicographic canonical path.
	for _, def := range defs {
		if def.IsThirdParty {
			return def, true
		}
	}

	// Fallback: a same-file definition below the reference. pytest does
	// not care about order within a file, so a usage above its definition
	// still resolves rather than dangling. The reference's own line stays
	// excluded, so a self-referential override with no parent resolves to
	// nothing rather than to itself.
	for _, def := range defs {
		if def.File != file || def.Line == pos.line {
			continue
		}
		if !found || def.Line > best.Line {
			best, found = def, true
		}
	}
	return best, found
}

// References collects every usage that resolves to exactly this
// definition, plus the definition's own name position. Per-definition
// scoping keeps counts correct when unrelated files declare parameters
// with the same name.
func (r *Resolver) References(def fixture.Definition) []fixture.Usage {
	refs := []fixture.Usage{{
		Name:      def.Name,
		File:      def.File,
		Line:      def.Line,
		StartChar: def.NameSpan.Start,
		EndChar:   def.NameSpan.End,
	}}

	for _, file := range r.index.UsageFiles() {
		for _, usage := range r.index.UsagesFor(file) {
			if usage.Name != def.Name {
				continue
			}
			resolved, ok := r.ResolveUsage(usage)
			if ok && resolved.SamePlace(def) {
				refs = append(refs, usage)
			}
		}
	}
	return refs
}

// AvailableFixtures returns every fixture visible from a file, one
// definition per name, nearest first within the pytest priority order and
// finally sorted by name for stable completion lists.
func (r *Resolver) AvailableFixtures(file string) []fixture.Definition {
	file = r.index.Canonical(file)
	seen := make(map[string]bool)
	var out []fixture.Definition

	take := func(def fixture.Definition) {
		if !seen[def.Name] {
			seen[def.Name] = true
			out = append(out, def)
		}
	}

	for _, name := range r.index.DefinitionNames() {
		for _, def := range r.index.DefinitionsFor(name) {
			if def.File == file {
				take(def)
			}
		}
	}

	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		conftest := filepath.Join(dir, "conftest.py")
		for _, name := range r.index.DefinitionNames() {
			for _, def := range r.index.DefinitionsFor(name) {
				if def.File == conftest {
					take(def)
				}
			}
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}

	for _, name := range r.index.DefinitionNames() {
		for _, def := range r.index.DefinitionsFor(name) {
			if def.IsThirdParty {
				take(def)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// lineText returns the 1-based line of a file from the cache (or disk).
func (r *Resolver) lineText(file string, line int) (string, bool) {
	content, ok := r.index.Content(file)
	if !ok || line < 1 {
		return "", false
	}
	lines := strings.Split(content, "\n")
	if line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}
