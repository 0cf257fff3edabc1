package index

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
)

func def(name, file string, line int) fixture.Definition {
	return fixture.Definition{
		Name:     name,
		File:     file,
		Line:     line,
		NameSpan: fixture.Span{Start: 4, End: 4 + len(name)},
	}
}

func usage(name, file string, line int) fixture.Usage {
	return fixture.Usage{Name: name, File: file, Line: line, StartChar: 0, EndChar: len(name)}
}

func TestReplaceFile(t *testing.T) {
	ix := New()

	ix.ReplaceFile("/ws/conftest.py", "content",
		[]fixture.Definition{def("db", "/ws/conftest.py", 2)},
		[]fixture.Usage{usage("db", "/ws/conftest.py", 5)},
		[]fixture.Undeclared{{Name: "db", File: "/ws/conftest.py", Line: 5}},
	)

	require.Len(t, ix.DefinitionsFor("db"), 1)
	require.Len(t, ix.UsagesFor("/ws/conftest.py"), 1)
	require.Len(t, ix.UndeclaredFor("/ws/conftest.py"), 1)

	content, ok := ix.CachedContent("/ws/conftest.py")
	require.True(t, ok)
	require.Equal(t, "content", content)
}

func TestReplaceFileIsAtomicPerFile(t *testing.T) {
	ix := New()

	ix.ReplaceFile("/ws/a/conftest.py", "a",
		[]fixture.Definition{def("db", "/ws/a/conftest.py", 1)}, nil, nil)
	ix.ReplaceFile("/ws/b/conftest.py", "b",
		[]fixture.Definition{def("db", "/ws/b/conftest.py", 3)}, nil, nil)

	// Re-analysis of one file must not disturb the other file's entries.
	ix.ReplaceFile("/ws/a/conftest.py", "a2",
		[]fixture.Definition{def("db", "/ws/a/conftest.py", 9)}, nil, nil)

	defs := ix.DefinitionsFor("db")
	require.Len(t, defs, 2)
	require.Equal(t, "/ws/a/conftest.py", defs[0].File)
	require.Equal(t, 9, defs[0].Line)
	require.Equal(t, "/ws/b/conftest.py", defs[1].File)
}

func TestReplaceFileClearsRemovedEntries(t *testing.T) {
	ix := New()

	ix.ReplaceFile("/ws/test_a.py", "v1",
		[]fixture.Definition{def("db", "/ws/test_a.py", 1)},
		[]fixture.Usage{usage("db", "/ws/test_a.py", 4)},
		[]fixture.Undeclared{{Name: "db", File: "/ws/test_a.py", Line: 4}},
	)
	ix.ReplaceFile("/ws/test_a.py", "v2", nil, nil, nil)

	require.Empty(t, ix.DefinitionsFor("db"))
	require.Empty(t, ix.UsagesFor("/ws/test_a.py"))
	require.Empty(t, ix.UndeclaredFor("/ws/test_a.py"))

	content, ok := ix.CachedContent("/ws/test_a.py")
	require.True(t, ok)
	require.Equal(t, "v2", content)
}

func TestReplaceFileIsIdempotent(t *testing.T) {
	ix := New()
	defs := []fixture.Definition{def("db", "/ws/conftest.py", 2)}
	usages := []fixture.Usage{usage("db", "/ws/conftest.py", 5)}

	ix.ReplaceFile("/ws/conftest.py", "c", defs, usages, nil)
	first := ix.DefinitionsFor("db")

	ix.ReplaceFile("/ws/conftest.py", "c", defs, usages, nil)
	second := ix.DefinitionsFor("db")

	require.Equal(t, first, second)
	require.Len(t, second, 1)
	require.Len(t, ix.UsagesFor("/ws/conftest.py"), 1)
}

func TestDefinitionsForNoDuplicateSamePlace(t *testing.T) {
	ix := New()
	d := def("db", "/ws/conftest.py", 2)
	ix.ReplaceFile("/ws/conftest.py", "c", []fixture.Definition{d, d}, nil, nil)
	require.Len(t, ix.DefinitionsFor("db"), 1)
}

func TestDefinitionsForIsSorted(t *testing.T) {
	ix := New()
	ix.ReplaceFile("/ws/b.py", "b", []fixture.Definition{def("db", "/ws/b.py", 1)}, nil, nil)
	ix.ReplaceFile("/ws/a.py", "a", []fixture.Definition{def("db", "/ws/a.py", 7)}, nil, nil)

	defs := ix.DefinitionsFor("db")
	require.Equal(t, "/ws/a.py", defs[0].File)
	require.Equal(t, "/ws/b.py", defs[1].File)
}

func TestCanonicalResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "test_a.py")
	require.NoError(t, os.WriteFile(real, []byte("x = 1\n"), 0o600))

	link := filepath.Join(dir, "alias.py")
	require.NoError(t, os.Symlink(real, link))

	ix := New()
	canonicalReal := ix.Canonical(real)
	canonicalLink := ix.Canonical(link)
	require.Equal(t, canonicalReal, canonicalLink)
}

func TestCanonicalFallsBackForMissingFiles(t *testing.T) {
	ix := New()
	got := ix.Canonical("/nonexistent/test_a.py")
	require.True(t, filepath.IsAbs(got))
}

func TestContentFallsBackToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_a.py")
	require.NoError(t, os.WriteFile(path, []byte("on disk"), 0o600))

	ix := New()
	content, ok := ix.Content(path)
	require.True(t, ok)
	require.Equal(t, "on disk", content)

	_, ok = ix.CachedContent(path)
	require.False(t, ok)
}

func TestConcurrentReplaceAndRead(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			file := filepath.Join("/ws", "test_"+string(rune('a'+n))+".py")
			for j := 0; j < 100; j++ {
				ix.ReplaceFile(file, "v",
					[]fixture.Definition{def("shared", file, j+1)},
					[]fixture.Usage{usage("shared", file, j+2)}, nil)
				ix.DefinitionsFor("shared")
				ix.UsagesFor(file)
				ix.DefinitionNames()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, ix.DefinitionsFor("shared"), 8)
}
