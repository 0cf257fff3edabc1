package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pytest-lsp/pytest-lsp/internal/observability"
)

// pluginScanDepth bounds recursion inside a plugin package directory.
const pluginScanDepth = 3

// ScanVenv locates the workspace virtualenv (.venv, venv, env, then the
// VIRTUAL_ENV environment variable) and analyzes every pytest plugin
// source found in its site-packages. Definitions from these files are
// third-party by path.
func (s *Scanner) ScanVenv(ctx context.Context, root string) {
	ctx, span := observability.StartSpan(ctx, "scan_venv")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.ScanDuration.WithLabelValues("venv").Observe(time.Since(start).Seconds())
	}()

	if s.venvOverride != "" {
		s.scanSitePackages(ctx, s.venvOverride)
		return
	}

	for _, name := range []string{".venv", "venv", "env"} {
		venv := filepath.Join(root, name)
		if info, err := os.Stat(venv); err == nil && info.IsDir() {
			s.scanSitePackages(ctx, venv)
			return
		}
	}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		if info, err := os.Stat(venv); err == nil && info.IsDir() {
			s.scanSitePackages(ctx, venv)
			return
		}
		slog.Warn("VIRTUAL_ENV path does not exist", "path", venv)
	}

	slog.Debug("no virtualenv found; third-party fixtures unavailable", "root", root)
}

func (s *Scanner) scanSitePackages(ctx context.Context, venv string) {
	sitePackages := findSitePackages(venv)
	if sitePackages == "" {
		slog.Warn("no site-packages under virtualenv", "venv", venv)
		return
	}
	slog.Info("scanning virtualenv plugins", "site_packages", sitePackages)

	// pytest's own _pytest package carries the built-in fixtures
	// (tmp_path, capsys, monkeypatch).
	if internal := filepath.Join(sitePackages, "_pytest"); isDir(internal) {
		s.scanPluginDir(ctx, internal)
	}

	entries, err := os.ReadDir(sitePackages)
	if err != nil {
		slog.Warn("failed to read site-packages", "path", sitePackages, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && strings.HasPrefix(name, "pytest_"):
			s.scanPluginDir(ctx, filepath.Join(sitePackages, name))
		case strings.HasSuffix(name, ".dist-info") || strings.HasSuffix(name, ".egg-info"):
			s.scanEntryPoints(ctx, filepath.Join(sitePackages, name), sitePackages)
		}
	}
}

// findSitePackages resolves <venv>/lib/python*/site-packages, or the
// Windows layout <venv>/Lib/site-packages.
func findSitePackages(venv string) string {
	lib := filepath.Join(venv, "lib")
	if entries, err := os.ReadDir(lib); err == nil {
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "python") {
				sp := filepath.Join(lib, entry.Name(), "site-packages")
				if isDir(sp) {
					return sp
				}
			}
		}
	}
	if sp := filepath.Join(venv, "Lib", "site-packages"); isDir(sp) {
		return sp
	}
	return ""
}

// scanPluginDir analyzes every non-test .py file under a plugin package.
func (s *Scanner) scanPluginDir(ctx context.Context, dir string) {
	base := dir
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			if depth := strings.Count(strings.TrimPrefix(path, base), string(filepath.Separator)); depth > pluginScanDepth {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".py") || strings.HasPrefix(name, "test_") {
			return nil
		}
		s.analyzeFile(ctx, path)
		return nil
	})
}

// scanEntryPoints reads a dist-info directory's entry_points.txt and
// analyzes the modules registered under [pytest11]. This catches plugins
// whose package name does not start with pytest_ (pytest-asyncio's
// pytest_asyncio.plugin style entries included).
func (s *Scanner) scanEntryPoints(ctx context.Context, distInfo, sitePackages string) {
	data, err := os.ReadFile(filepath.Join(distInfo, "entry_points.txt"))
	if err != nil {
		return
	}
	for _, modulePath := range parsePytest11Entries(string(data)) {
		resolved := resolveEntryPointModule(sitePackages, modulePath)
		if resolved == "" {
			slog.Debug("could not resolve pytest11 entry", "module", modulePath)
			continue
		}
		if filepath.Base(resolved) == "__init__.py" {
			s.scanPluginDir(ctx, filepath.Dir(resolved))
		} else {
			s.analyzeFile(ctx, resolved)
		}
	}
}

// parsePytest11Entries extracts the module paths from the [pytest11]
// section of an entry_points.txt. Malformed lines are ignored.
func parsePytest11Entries(content string) []string {
	var modules []string
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inSection = line == "[pytest11]"
			continue
		}
		if !inSection || line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, module, ok := strings.Cut(line, "="); ok {
			modules = append(modules, strings.TrimSpace(module))
		}
	}
	return modules
}

// resolveEntryPointModule maps a dotted module path to a file under
// site-packages: a .py module, or a package's __init__.py. Any ":attr"
// suffix is dropped.
func resolveEntryPointModule(sitePackages, modulePath string) string {
	modulePath, _, _ = strings.Cut(modulePath, ":")
	if modulePath == "" {
		return ""
	}
	path := sitePackages
	for _, part := range strings.Split(modulePath, ".") {
		path = filepath.Join(path, part)
	}
	if pyFile := path + ".py"; isFile(pyFile) {
		return pyFile
	}
	if initFile := filepath.Join(path, "__init__.py"); isFile(initFile) {
		return initFile
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
