package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pytest-lsp/pytest-lsp/internal/analyzer"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newScanner(t *testing.T, excludes ...string) (*Scanner, *index.Index) {
	t.Helper()
	ix := index.New()
	sc, err := New(analyzer.New(ix), ix, excludes)
	require.NoError(t, err)
	return sc, ix
}

func fixtureFile(name string) string {
	out := ""
	for _, line := range []string{"import pytest", "", "@pytest.fixture", "def " + name + "():", "    return 1", ""} {
		out += line + "\n"
	}
	return out
}

func TestScanWorkspace(t *testing.T) {
	root := t.TempDir()
	write(t, root, "conftest.py", fixtureFile("db"))
	write(t, root, "tests/test_login.py", "def test_login(db):\n    assert db\n")
	write(t, root, "tests/login_test.py", "def test_suffix(db):\n    assert db\n")
	write(t, root, "helpers.py", fixtureFile("not_indexed"))
	write(t, root, "__pycache__/test_cache.py", "def test_cached(db):\n    pass\n")
	write(t, root, "node_modules/pkg/test_js.py", "def test_js(db):\n    pass\n")

	sc, ix := newScanner(t)
	require.NoError(t, sc.ScanWorkspace(context.Background(), root))

	require.Len(t, ix.DefinitionsFor("db"), 1)
	require.Empty(t, ix.DefinitionsFor("not_indexed"))

	login := ix.Canonical(filepath.Join(root, "tests/test_login.py"))
	require.Len(t, ix.UsagesFor(login), 1)

	suffix := ix.Canonical(filepath.Join(root, "tests/login_test.py"))
	require.Len(t, ix.UsagesFor(suffix), 1)

	cached := ix.Canonical(filepath.Join(root, "__pycache__/test_cache.py"))
	require.Empty(t, ix.UsagesFor(cached))
}

func TestScanWorkspaceUsagesSeeLaterDefinitions(t *testing.T) {
	// The test file sorts before the conftest that defines its fixture;
	// the second analysis pass must still record the usage.
	root := t.TempDir()
	write(t, root, "a_test.py", "def test_first(zz_fixture):\n    assert zz_fixture\n")
	write(t, root, "conftest.py", fixtureFile("zz_fixture"))

	sc, ix := newScanner(t)
	require.NoError(t, sc.ScanWorkspace(context.Background(), root))

	path := ix.Canonical(filepath.Join(root, "a_test.py"))
	require.Len(t, ix.UsagesFor(path), 1)
}

func TestScanWorkspaceExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	write(t, root, "conftest.py", fixtureFile("db"))
	write(t, root, "generated/test_gen.py", "def test_gen(db):\n    pass\n")

	sc, ix := newScanner(t, "generated/*")
	require.NoError(t, sc.ScanWorkspace(context.Background(), root))

	gen := ix.Canonical(filepath.Join(root, "generated/test_gen.py"))
	require.Empty(t, ix.UsagesFor(gen))
	_, cached := ix.CachedContent(gen)
	require.False(t, cached)
}

func TestScanWorkspaceMissingRoot(t *testing.T) {
	sc, _ := newScanner(t)
	require.Error(t, sc.ScanWorkspace(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestScanWorkspaceUnreadableFileIsSkipped(t *testing.T) {
	root := t.TempDir()
	write(t, root, "conftest.py", fixtureFile("db"))
	bad := write(t, root, "test_bad.py", "def test_bad(db):\n    pass\n")
	require.NoError(t, os.Chmod(bad, 0o000))
	t.Cleanup(func() { _ = os.Chmod(bad, 0o600) })

	sc, ix := newScanner(t)
	require.NoError(t, sc.ScanWorkspace(context.Background(), root))
	require.Len(t, ix.DefinitionsFor("db"), 1)
}

func TestScanVenvPluginDirs(t *testing.T) {
	root := t.TempDir()
	sitePackages := filepath.Join(root, ".venv", "lib", "python3.12", "site-packages")
	write(t, root, filepath.Join(".venv", "lib", "python3.12", "site-packages", "pytest_mock", "plugin.py"),
		fixtureFile("mocker"))
	write(t, root, filepath.Join(".venv", "lib", "python3.12", "site-packages", "_pytest", "tmpdir.py"),
		fixtureFile("tmp_path"))

	sc, ix := newScanner(t)
	sc.ScanVenv(context.Background(), root)

	defs := ix.DefinitionsFor("mocker")
	require.Len(t, defs, 1)
	require.True(t, defs[0].IsThirdParty)
	require.Equal(t, ix.Canonical(filepath.Join(sitePackages, "pytest_mock", "plugin.py")), defs[0].File)

	builtins := ix.DefinitionsFor("tmp_path")
	require.Len(t, builtins, 1)
	require.True(t, builtins[0].IsThirdParty)
}

func TestScanVenvEntryPoints(t *testing.T) {
	root := t.TempDir()
	sp := filepath.Join(".venv", "lib", "python3.12", "site-packages")
	// Package name without the pytest_ prefix, registered via entry points.
	write(t, root, filepath.Join(sp, "mockito", "__init__.py"), fixtureFile("when"))
	write(t, root, filepath.Join(sp, "mockito-1.0.0.dist-info", "entry_points.txt"),
		"[console_scripts]\nx = y:main\n\n[pytest11]\nmockito = mockito\n")

	sc, ix := newScanner(t)
	sc.ScanVenv(context.Background(), root)

	require.Len(t, ix.DefinitionsFor("when"), 1)
}

func TestScanVenvFromEnvironment(t *testing.T) {
	workspace := t.TempDir()
	venv := t.TempDir()
	write(t, venv, filepath.Join("lib", "python3.12", "site-packages", "pytest_thing", "plugin.py"),
		fixtureFile("thing"))

	t.Setenv("VIRTUAL_ENV", venv)
	sc, ix := newScanner(t)
	sc.ScanVenv(context.Background(), workspace)

	require.Len(t, ix.DefinitionsFor("thing"), 1)
}

func TestParsePytest11Entries(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "basic",
			content: "[pytest11]\nmy_plugin = my_package.plugin\nanother = another_pkg\n",
			want:    []string{"my_package.plugin", "another_pkg"},
		},
		{
			name:    "empty",
			content: "",
			want:    nil,
		},
		{
			name:    "no section",
			content: "[console_scripts]\ncli = pkg:main\n",
			want:    nil,
		},
		{
			name:    "comments and whitespace",
			content: "[pytest11]\n# comment\n   my_plugin   =   my_package.plugin\n",
			want:    []string{"my_package.plugin"},
		},
		{
			name:    "section ends",
			content: "[pytest11]\na = pkg_a\n[other]\nb = pkg_b\n",
			want:    []string{"pkg_a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parsePytest11Entries(tt.content))
		})
	}
}

func TestResolveEntryPointModule(t *testing.T) {
	sp := t.TempDir()
	write(t, sp, "single.py", "")
	write(t, sp, filepath.Join("pkg", "__init__.py"), "")
	write(t, sp, filepath.Join("pkg", "plugin.py"), "")

	require.Equal(t, filepath.Join(sp, "single.py"), resolveEntryPointModule(sp, "single"))
	require.Equal(t, filepath.Join(sp, "pkg", "__init__.py"), resolveEntryPointModule(sp, "pkg"))
	require.Equal(t, filepath.Join(sp, "pkg", "plugin.py"), resolveEntryPointModule(sp, "pkg.plugin"))
	require.Equal(t, filepath.Join(sp, "pkg", "plugin.py"), resolveEntryPointModule(sp, "pkg.plugin:entry"))
	require.Equal(t, "", resolveEntryPointModule(sp, "missing"))
}

func TestRescanVenvIsRateLimited(t *testing.T) {
	root := t.TempDir()
	sp := filepath.Join(".venv", "lib", "python3.12", "site-packages")
	write(t, root, filepath.Join(sp, "pytest_thing", "plugin.py"), fixtureFile("thing"))

	sc, ix := newScanner(t)
	sc.RescanVenv(context.Background(), root)
	require.Len(t, ix.DefinitionsFor("thing"), 1)

	// Adding a plugin and rescanning immediately is throttled.
	write(t, root, filepath.Join(sp, "pytest_other", "plugin.py"), fixtureFile("other"))
	sc.RescanVenv(context.Background(), root)
	require.Empty(t, ix.DefinitionsFor("other"))
}
