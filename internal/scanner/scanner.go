// Package scanner discovers the Python files worth indexing: conftest.py
// and test files across the workspace, and pytest plugin sources inside
// the project's virtualenv.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/time/rate"

	"github.com/pytest-lsp/pytest-lsp/internal/analyzer"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/observability"
	"github.com/pytest-lsp/pytest-lsp/internal/pytestsyntax"
)

// skipDirs are directories never worth descending into. Virtualenvs are
// skipped here and scanned separately for plugins.
var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	".venv": true, "venv": true, "env": true, ".env": true,
	"__pycache__": true, ".pytest_cache": true, ".mypy_cache": true,
	".ruff_cache": true, ".tox": true, ".nox": true,
	"build": true, "dist": true, ".eggs": true,
	"node_modules": true, "bower_components": true,
	"target": true, ".idea": true, ".vscode": true,
	".cache": true, "vendor": true, "site-packages": true,
}

func shouldSkipDir(name string) bool {
	return skipDirs[name] || strings.HasSuffix(name, ".egg-info")
}

type Scanner struct {
	analyzer *analyzer.Analyzer
	index    *index.Index
	excludes []glob.Glob

	// venvOverride, when set, replaces virtualenv discovery entirely.
	venvOverride string

	// venvLimiter throttles repeated venv rescans triggered by rapid
	// editor events.
	venvLimiter *rate.Limiter
}

// SetVenvOverride pins the virtualenv to an explicit path instead of
// probing .venv/venv/env and VIRTUAL_ENV.
func (s *Scanner) SetVenvOverride(path string) {
	s.venvOverride = path
}

func New(a *analyzer.Analyzer, ix *index.Index, excludePatterns []string) (*Scanner, error) {
	excludes := make([]glob.Glob, 0, len(excludePatterns))
	for _, pattern := range excludePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		excludes = append(excludes, g)
	}
	return &Scanner{
		analyzer:    a,
		index:       ix,
		excludes:    excludes,
		venvLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, g := range s.excludes {
		if g.Match(rel) || g.Match(filepath.Base(rel)) {
			return true
		}
	}
	return false
}

// ScanWorkspace walks root, analyzes every conftest and test file, and
// scans the virtualenv for plugin fixtures. Files are analyzed twice: the
// first pass populates definitions, the second records usages and
// undeclared references against the now-complete definition set, so
// results do not depend on traversal order.
func (s *Scanner) ScanWorkspace(ctx context.Context, root string) error {
	ctx, span := observability.StartSpan(ctx, "scan_workspace")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.ScanDuration.WithLabelValues("workspace").Observe(time.Since(start).Seconds())
	}()

	root = s.index.Canonical(root)
	if _, err := os.Stat(root); err != nil {
		return err
	}

	s.ScanVenv(ctx, root)

	files := s.collectFiles(root)
	slog.Info("workspace scan", "root", root, "files", len(files))

	s.analyzeAll(ctx, files)
	s.analyzeAll(ctx, files)
	return nil
}

func (s *Scanner) collectFiles(root string) []string {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("workspace walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !pytestsyntax.IsIndexedFilename(path) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil && s.excluded(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		slog.Warn("workspace walk aborted", "error", err)
	}
	return files
}

// analyzeAll runs the analyzer over files with a small worker pool. The
// index tolerates concurrent per-file replacement.
func (s *Scanner) analyzeAll(ctx context.Context, files []string) {
	workers := runtime.NumCPU()
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		return
	}

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				s.analyzeFile(ctx, path)
			}
		}()
	}
	for _, path := range files {
		work <- path
	}
	close(work)
	wg.Wait()
}

func (s *Scanner) analyzeFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file", "path", path, "error", err)
		return
	}
	// Parse errors are already logged and contained by the analyzer.
	_ = s.analyzer.Analyze(ctx, path, string(data))
}

// RescanVenv re-runs the virtualenv scan, rate limited so bursts of
// editor events cannot hammer site-packages.
func (s *Scanner) RescanVenv(ctx context.Context, root string) {
	if !s.venvLimiter.Allow() {
		return
	}
	s.ScanVenv(ctx, root)
}
