package pytestsyntax

import (
	"path/filepath"
	"strings"
)

// IsTestName reports whether a function name marks a test function:
// it begins with test_ or ends with _test.
func IsTestName(name string) bool {
	return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test")
}

// IsIndexedFilename reports whether a file name is one the scanner and
// watcher index: conftest.py, test_*.py, or *_test.py.
func IsIndexedFilename(path string) bool {
	base := filepath.Base(path)
	if base == "conftest.py" {
		return true
	}
	if !strings.HasSuffix(base, ".py") {
		return false
	}
	return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
}
