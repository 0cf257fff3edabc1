// Package index holds the workspace-wide fixture index: four concurrent
// maps keyed by fixture name or canonical file path. All paths are
// canonicalized on entry so a file never appears under two aliases.
package index

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/observability"
)

// Index is the process-wide fixture database. Entries are created and
// atomically replaced per file by the analyzer; they live for the process
// lifetime with no eviction.
type Index struct {
	definitions *shardedMap[[]fixture.Definition]
	usages      *shardedMap[[]fixture.Usage]
	undeclared  *shardedMap[[]fixture.Undeclared]
	fileCache   *shardedMap[string]

	// canonical amortizes the symlink-resolving syscalls behind Canonical.
	canonical *shardedMap[string]
}

func New() *Index {
	return &Index{
		definitions: newShardedMap[[]fixture.Definition](),
		usages:      newShardedMap[[]fixture.Usage](),
		undeclared:  newShardedMap[[]fixture.Undeclared](),
		fileCache:   newShardedMap[string](),
		canonical:   newShardedMap[string](),
	}
}

// Canonical resolves a path to its absolute, symlink-free form, falling
// back to the absolute form when resolution fails (file deleted, dangling
// symlink). Results are cached.
func (ix *Index) Canonical(path string) string {
	if cached, ok := ix.canonical.Get(path); ok {
		return cached
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	ix.canonical.Set(path, resolved)
	return resolved
}

// ReplaceFile atomically swaps every entry attributed to a canonical path
// with the results of its latest analysis. The file cache is written
// last, so an observer that sees the new content also sees the matching
// usages and undeclared entries. Definitions for other files are never
// touched.
func (ix *Index) ReplaceFile(path, content string, defs []fixture.Definition, usages []fixture.Usage, undeclared []fixture.Undeclared) {
	ix.clearDefinitionsFor(path)

	for _, def := range defs {
		ix.definitions.Update(def.Name, func(old []fixture.Definition, _ bool) ([]fixture.Definition, bool) {
			for _, existing := range old {
				if existing.SamePlace(def) {
					return old, true
				}
			}
			return append(old, def), true
		})
	}

	if len(usages) == 0 {
		ix.usages.Delete(path)
	} else {
		ix.usages.Set(path, usages)
	}
	if len(undeclared) == 0 {
		ix.undeclared.Delete(path)
	} else {
		ix.undeclared.Set(path, undeclared)
	}

	ix.fileCache.Set(path, content)
	observability.IndexDefinitionNames.Set(float64(ix.definitions.Len()))
	observability.IndexFiles.Set(float64(ix.fileCache.Len()))
}

// ClearFile drops all non-cache entries for a path while keeping the
// latest content cached. Used when a re-analysis hits a parse error: the
// stale entries must not outlive the content they were computed from.
func (ix *Index) ClearFile(path, content string) {
	ix.ReplaceFile(path, content, nil, nil, nil)
}

// clearDefinitionsFor removes every definition attributed to path. Keys
// are snapshotted first and each value list is then mutated in isolation;
// holding two live references into the map at once is what deadlocked an
// earlier design.
func (ix *Index) clearDefinitionsFor(path string) {
	for _, name := range ix.definitions.Keys() {
		ix.definitions.Update(name, func(old []fixture.Definition, ok bool) ([]fixture.Definition, bool) {
			if !ok {
				return nil, false
			}
			filtered := old[:0:0]
			for _, def := range old {
				if def.File != path {
					filtered = append(filtered, def)
				}
			}
			if len(filtered) == 0 {
				return nil, false
			}
			return filtered, true
		})
	}
}

// DefinitionsFor returns a copy of the definitions recorded for a name,
// sorted by (file, line) so iteration order of the underlying shards
// never leaks into results.
func (ix *Index) DefinitionsFor(name string) []fixture.Definition {
	defs, ok := ix.definitions.Get(name)
	if !ok {
		return nil
	}
	out := make([]fixture.Definition, len(defs))
	copy(out, defs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// DefinitionNames returns all known fixture names, sorted.
func (ix *Index) DefinitionNames() []string {
	names := ix.definitions.Keys()
	sort.Strings(names)
	return names
}

// UsagesFor returns a copy of the usages recorded for a canonical path.
func (ix *Index) UsagesFor(path string) []fixture.Usage {
	usages, ok := ix.usages.Get(path)
	if !ok {
		return nil
	}
	out := make([]fixture.Usage, len(usages))
	copy(out, usages)
	return out
}

// UsageFiles returns every canonical path with recorded usages, sorted.
func (ix *Index) UsageFiles() []string {
	files := ix.usages.Keys()
	sort.Strings(files)
	return files
}

// UndeclaredFor returns a copy of the undeclared-fixture entries for a
// canonical path.
func (ix *Index) UndeclaredFor(path string) []fixture.Undeclared {
	entries, ok := ix.undeclared.Get(path)
	if !ok {
		return nil
	}
	out := make([]fixture.Undeclared, len(entries))
	copy(out, entries)
	return out
}

// Content returns the cached content for a canonical path, reading from
// disk on a miss. Correctness does not depend on the cache: entries are
// only consulted for files the analyzer has seen.
func (ix *Index) Content(path string) (string, bool) {
	if content, ok := ix.fileCache.Get(path); ok {
		return content, true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// CachedContent reports the cached content only, without the disk
// fallback.
func (ix *Index) CachedContent(path string) (string, bool) {
	return ix.fileCache.Get(path)
}
