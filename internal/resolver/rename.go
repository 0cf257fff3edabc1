package resolver

import (
	"fmt"

	"github.com/pytest-lsp/pytest-lsp/internal/core/errors"
	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
)

// builtinFixtures are pytest-provided names that must never be renamed.
var builtinFixtures = map[string]bool{
	"request":  true,
	"tmp_path": true,
}

// ValidateRename checks that a definition may be renamed to newName.
// Third-party definitions, built-in fixtures, and names defined only in
// third-party sources are rejected, as are invalid Python identifiers.
func (r *Resolver) ValidateRename(def fixture.Definition, newName string) error {
	if !pytestsyntax.IsPythonIdentifier(newName) {
		return errors.AddContext(
			errors.New(errors.CodeInvalidRename, fmt.Sprintf("%q is not a valid Python identifier", newName)),
			errors.CtxFixture, def.Name)
	}
	if def.IsThirdParty {
		return errors.New(errors.CodeInvalidRename,
			fmt.Sprintf("cannot rename third-party fixture %q", def.Name))
	}
	if builtinFixtures[def.Name] {
		return errors.New(errors.CodeInvalidRename,
			fmt.Sprintf("cannot rename built-in fixture %q", def.Name))
	}
	onlyThirdParty := true
	for _, d := range r.index.DefinitionsFor(def.Name) {
		if !d.IsThirdParty {
			onlyThirdParty = false
			break
		}
	}
	if onlyThirdParty {
		return errors.New(errors.CodeInvalidRename,
			fmt.Sprintf("cannot rename fixture %q defined only in third-party sources", def.Name))
	}
	return nil
}
