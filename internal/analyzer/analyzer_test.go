package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pytest-lsp/pytest-lsp/internal/core/errors"
	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
)

type workspace struct {
	t   *testing.T
	dir string
	ix  *index.Index
	an  *Analyzer
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	ix := index.New()
	return &workspace{t: t, dir: t.TempDir(), ix: ix, an: New(ix)}
}

// analyze writes the file and runs the analyzer on it, returning the
// canonical path.
func (ws *workspace) analyze(rel, content string) string {
	ws.t.Helper()
	path := filepath.Join(ws.dir, rel)
	require.NoError(ws.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(ws.t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(ws.t, ws.an.Analyze(context.Background(), path, content))
	return ws.ix.Canonical(path)
}

func (ws *workspace) defsNamed(name string) []fixture.Definition {
	return ws.ix.DefinitionsFor(name)
}

func TestDefinitionExtraction(t *testing.T) {
	t.Run("decorator form", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef user_db():\n    return object()\n")

		defs := ws.defsNamed("user_db")
		require.Len(t, defs, 1)
		require.Equal(t, path, defs[0].File)
		require.Equal(t, 4, defs[0].Line)
		require.Equal(t, fixture.Span{Start: 4, End: 11}, defs[0].NameSpan)
		require.False(t, defs[0].Async)
		require.False(t, defs[0].IsThirdParty)
		require.Equal(t, "user_db()", defs[0].Signature)
	})

	t.Run("called decorator with arguments", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture(scope=\"session\")\ndef session_db():\n    return object()\n")
		require.Len(t, ws.defsNamed("session_db"), 1)
	})

	t.Run("bare fixture import", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "from pytest import fixture\n\n@fixture\ndef db():\n    return 1\n")
		require.Len(t, ws.defsNamed("db"), 1)
	})

	t.Run("async def", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\nasync def aio_db():\n    yield 1\n")

		defs := ws.defsNamed("aio_db")
		require.Len(t, defs, 1)
		require.True(t, defs[0].Async)
		require.Equal(t, 4, defs[0].Line)
		require.Equal(t, fixture.Span{Start: 10, End: 16}, defs[0].NameSpan)
	})

	t.Run("name override", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture(name=\"db\")\ndef _db_impl():\n    return 1\n")
		require.Len(t, ws.defsNamed("db"), 1)
		require.Empty(t, ws.defsNamed("_db_impl"))
	})

	t.Run("assignment form", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("conftest.py", "import pytest\n\ndef make_mock():\n    return 1\n\nmy_mock = pytest.fixture()(make_mock)\n")

		defs := ws.defsNamed("my_mock")
		require.Len(t, defs, 1)
		require.Equal(t, path, defs[0].File)
		require.Equal(t, 6, defs[0].Line)
		require.Equal(t, fixture.Span{Start: 0, End: 7}, defs[0].NameSpan)
	})

	t.Run("docstring is cleaned", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef db():\n    \"\"\"Make a db.\n\n    More detail.\n    \"\"\"\n    return 1\n")

		defs := ws.defsNamed("db")
		require.Len(t, defs, 1)
		require.Equal(t, "Make a db.\n\nMore detail.", defs[0].Docstring)
		require.NotEmpty(t, defs[0].RawDoc)
	})

	t.Run("autouse flag", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture(autouse=True)\ndef setup_env():\n    pass\n")

		defs := ws.defsNamed("setup_env")
		require.Len(t, defs, 1)
		require.True(t, defs[0].Autouse)
	})

	t.Run("class-nested fixture", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("test_a.py", "import pytest\n\nclass TestGroup:\n    @pytest.fixture\n    def member(self):\n        return 1\n")
		require.Len(t, ws.defsNamed("member"), 1)
	})

	t.Run("third-party by path", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze(
			filepath.Join(".venv", "lib", "python3.12", "site-packages", "pytest_mock", "plugin.py"),
			"import pytest\n\n@pytest.fixture\ndef mocker():\n    return 1\n")

		defs := ws.defsNamed("mocker")
		require.Len(t, defs, 1)
		require.Equal(t, path, defs[0].File)
		require.True(t, defs[0].IsThirdParty)
	})
}

func TestParameterUsages(t *testing.T) {
	t.Run("same-file fixture in one pass", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("test_a.py", "import pytest\n\n@pytest.fixture\ndef x():\n    return 1\n\ndef test_one(x):\n    assert x\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 1)
		require.Equal(t, "x", usages[0].Name)
		require.Equal(t, 7, usages[0].Line)
		require.Equal(t, 13, usages[0].StartChar)
		require.Equal(t, 14, usages[0].EndChar)
	})

	t.Run("unknown parameter is not a usage", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("test_a.py", "def test_one(not_a_fixture):\n    assert not_a_fixture\n")
		require.Empty(t, ws.ix.UsagesFor(path))
	})

	t.Run("conftest fixture reaches test file", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n")
		path := ws.analyze("tests/test_a.py", "def test_one(db):\n    assert db\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 1)
		require.Equal(t, "db", usages[0].Name)
	})

	t.Run("sibling test file does not contribute", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("test_a.py", "import pytest\n\n@pytest.fixture\ndef only_here():\n    return 1\n")
		path := ws.analyze("test_b.py", "def test_one(only_here):\n    assert only_here\n")
		require.Empty(t, ws.ix.UsagesFor(path))
	})

	t.Run("self and request are skipped", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef request():\n    pass\n\n@pytest.fixture\ndef self():\n    pass\n")
		path := ws.analyze("test_a.py", "class TestG:\n    def test_one(self, request):\n        pass\n")
		require.Empty(t, ws.ix.UsagesFor(path))
	})

	t.Run("fixture depending on fixture", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\n@pytest.fixture\ndef cache(db):\n    return {db: 1}\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 1)
		require.Equal(t, "db", usages[0].Name)
		require.Equal(t, 8, usages[0].Line)
	})

	t.Run("multi-line signature", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\n@pytest.fixture\ndef cache():\n    return 1\n")
		path := ws.analyze("test_a.py", "def test_many(\n    db,\n    cache,\n):\n    assert db and cache\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 2)
		require.Equal(t, "db", usages[0].Name)
		require.Equal(t, 2, usages[0].Line)
		require.Equal(t, 4, usages[0].StartChar)
		require.Equal(t, "cache", usages[1].Name)
		require.Equal(t, 3, usages[1].Line)
	})
}

func TestDecoratorUsages(t *testing.T) {
	t.Run("usefixtures on function", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("test_a.py",
			"import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\n@pytest.mark.usefixtures(\"db\")\ndef test_one():\n    pass\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 1)
		require.Equal(t, "db", usages[0].Name)
		require.Equal(t, 7, usages[0].Line)
		require.Equal(t, 26, usages[0].StartChar)
		require.Equal(t, 28, usages[0].EndChar)
	})

	t.Run("usefixtures on class", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("test_a.py",
			"import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\n@pytest.fixture\ndef cache():\n    return 1\n\n@pytest.mark.usefixtures(\"db\", \"cache\")\nclass TestGroup:\n    def test_one(self):\n        pass\n")

		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 2)
		require.Equal(t, "db", usages[0].Name)
		require.Equal(t, 11, usages[0].Line)
		require.Equal(t, "cache", usages[1].Name)
		require.Equal(t, 11, usages[1].Line)
	})

	t.Run("parametrize indirect list", func(t *testing.T) {
		ws := newWorkspace(t)
		path := ws.analyze("test_a.py",
			"import pytest\n\n@pytest.fixture\ndef user(request):\n    return request.param\n\n@pytest.mark.parametrize(\"user,val\", [(1, 2)], indirect=[\"user\"])\ndef test_one(user, val):\n    pass\n")

		var names []string
		for _, u := range ws.ix.UsagesFor(path) {
			names = append(names, u.Name)
		}
		// The indirect usage inside the literal plus the `user` parameter.
		require.Equal(t, []string{"user", "user"}, names)
	})
}

func TestUndeclaredFixtures(t *testing.T) {
	t.Run("body reference to reachable fixture", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef user_db():\n    return object()\n")
		path := ws.analyze("test_b.py", "def test_broken():\n    user_db.get()\n")

		entries := ws.ix.UndeclaredFor(path)
		require.Len(t, entries, 1)
		require.Equal(t, "user_db", entries[0].Name)
		require.Equal(t, 2, entries[0].Line)
		require.Equal(t, 4, entries[0].StartChar)
		require.Equal(t, 11, entries[0].EndChar)
		require.Equal(t, "test_broken", entries[0].FuncName)
		require.Equal(t, 1, entries[0].FuncDefLine)

		// The same reference is also recorded as a usage.
		usages := ws.ix.UsagesFor(path)
		require.Len(t, usages, 1)
		require.Equal(t, "user_db", usages[0].Name)
	})

	t.Run("declared parameter is not undeclared", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef user_db():\n    return 1\n")
		path := ws.analyze("test_b.py", "def test_ok(user_db):\n    user_db.get()\n")
		require.Empty(t, ws.ix.UndeclaredFor(path))
	})

	t.Run("line-aware local scoping", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef user_db():\n    return 1\n")
		path := ws.analyze("test_b.py",
			"def test_scope():\n    before = user_db\n    user_db = make()\n    after = user_db\n")

		entries := ws.ix.UndeclaredFor(path)
		require.Len(t, entries, 1)
		require.Equal(t, 2, entries[0].Line)
	})

	t.Run("hierarchy aware", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("pkg/conftest.py", "import pytest\n\n@pytest.fixture\ndef scoped_db():\n    return 1\n")
		path := ws.analyze("other/test_b.py", "def test_far():\n    scoped_db.get()\n")
		require.Empty(t, ws.ix.UndeclaredFor(path))
	})

	t.Run("imported names are excluded", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef helpers():\n    return 1\n")
		path := ws.analyze("test_b.py", "import helpers\n\ndef test_uses_module():\n    helpers.run()\n")
		require.Empty(t, ws.ix.UndeclaredFor(path))
	})

	t.Run("request is never undeclared", func(t *testing.T) {
		ws := newWorkspace(t)
		ws.analyze("conftest.py", "import pytest\n\n@pytest.fixture\ndef request():\n    return 1\n")
		path := ws.analyze("test_b.py", "def test_r():\n    request.node\n")
		require.Empty(t, ws.ix.UndeclaredFor(path))
	})
}

func TestParseErrorClearsEntries(t *testing.T) {
	ws := newWorkspace(t)
	path := ws.analyze("test_a.py", "import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\ndef test_one(db):\n    assert db\n")
	require.NotEmpty(t, ws.defsNamed("db"))
	require.NotEmpty(t, ws.ix.UsagesFor(path))

	broken := "def test_one(:\n"
	err := ws.an.Analyze(context.Background(), path, broken)
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.CodeParseError))

	require.Empty(t, ws.defsNamed("db"))
	require.Empty(t, ws.ix.UsagesFor(path))
	require.Empty(t, ws.ix.UndeclaredFor(path))

	content, ok := ws.ix.CachedContent(path)
	require.True(t, ok)
	require.Equal(t, broken, content)
}

func TestReanalyzeIsStable(t *testing.T) {
	ws := newWorkspace(t)
	content := "import pytest\n\n@pytest.fixture\ndef db():\n    return 1\n\ndef test_one(db):\n    assert db\n"
	path := ws.analyze("test_a.py", content)

	defs1 := ws.defsNamed("db")
	usages1 := ws.ix.UsagesFor(path)

	require.NoError(t, ws.an.Analyze(context.Background(), path, content))
	require.Equal(t, defs1, ws.defsNamed("db"))
	require.Equal(t, usages1, ws.ix.UsagesFor(path))
}
