package resolver

import (
	"path/filepath"
	"strings"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
)

// Available reports whether a fixture name is visible from a file under
// pytest's rules: a definition in the same file, in a conftest.py at or
// above the file's directory, or in a third-party plugin. Sibling test
// files never contribute.
func Available(ix *index.Index, file, name string) bool {
	for _, def := range ix.DefinitionsFor(name) {
		if definitionReaches(def, file) {
			return true
		}
	}
	return false
}

func definitionReaches(def fixture.Definition, file string) bool {
	if def.File == file {
		return true
	}
	if def.IsThirdParty {
		return true
	}
	if filepath.Base(def.File) != "conftest.py" {
		return false
	}
	confDir := filepath.Dir(def.File)
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if dir == confDir {
			return true
		}
		if dir == filepath.Dir(dir) {
			return false
		}
	}
}

// IsThirdPartyPath reports whether a canonical path lies under a
// site-packages directory.
func IsThirdPartyPath(path string) bool {
	return strings.Contains(path, string(filepath.Separator)+"site-packages"+string(filepath.Separator))
}
