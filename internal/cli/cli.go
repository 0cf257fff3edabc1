// Package cli implements the fixtures subcommand: a tree of conftest and
// test files with their fixtures and usage counts.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pytest-lsp/pytest-lsp/internal/analyzer"
	"github.com/pytest-lsp/pytest-lsp/internal/config"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/resolver"
	"github.com/pytest-lsp/pytest-lsp/internal/scanner"
)

const (
	exitOK       = 0
	exitArgError = 2
)

// Run executes `fixtures <subcommand>`. It returns the process exit
// code: 0 on success, 2 on argument errors.
func Run(args []string, cfg *config.Config) int {
	if len(args) == 0 || args[0] != "list" {
		fmt.Fprintln(os.Stderr, "usage: pytest-lsp fixtures list <path> [--skip-unused] [--only-unused]")
		return exitArgError
	}

	fs := flag.NewFlagSet("fixtures list", flag.ContinueOnError)
	skipUnused := fs.Bool("skip-unused", false, "Hide fixtures with no usages")
	onlyUnused := fs.Bool("only-unused", false, "Show only fixtures with no usages")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return exitArgError
	}
	if *skipUnused && *onlyUnused {
		fmt.Fprintln(os.Stderr, "--skip-unused and --only-unused cannot be used together")
		return exitArgError
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "fixtures list accepts a single path argument")
		return exitArgError
	}

	ix := index.New()
	an := analyzer.New(ix)
	sc, err := scanner.New(an, ix, cfg.Exclude.Globs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitArgError
	}
	if cfg.Venv != "" {
		sc.SetVenvOverride(cfg.Venv)
	}

	canonicalRoot := ix.Canonical(root)
	if err := sc.ScanWorkspace(context.Background(), canonicalRoot); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}

	printFixturesTree(os.Stdout, ix, resolver.New(ix), canonicalRoot, *skipUnused, *onlyUnused)
	return exitOK
}
