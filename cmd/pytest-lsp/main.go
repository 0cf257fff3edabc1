package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/pytest-lsp/pytest-lsp/internal/cli"
	"github.com/pytest-lsp/pytest-lsp/internal/config"
	"github.com/pytest-lsp/pytest-lsp/internal/lspserver"
	"github.com/pytest-lsp/pytest-lsp/internal/observability"
)

var (
	configPath = flag.String("config", "./pytest-lsp.toml", "Path to config file")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("pytest-lsp v%s\n", VERSION)
		os.Exit(0)
	}

	// Logs always go to stderr; stdout carries the LSP stream.
	logLevel := levelFromEnv()
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	_, shutdownTracing := observability.SetupTracing()
	defer func() { _ = shutdownTracing(context.Background()) }()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "fixtures":
			os.Exit(cli.Run(flag.Args()[1:], cfg))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", flag.Arg(0))
			os.Exit(2)
		}
	}

	// No subcommand: run the language server over stdio. The glsp
	// transport logs through commonlog; route it to stderr at a
	// verbosity matching ours.
	commonVerbosity := 0
	if logLevel == slog.LevelDebug {
		commonVerbosity = 2
	}
	commonlog.Configure(commonVerbosity, nil)

	server, err := lspserver.New(cfg)
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	if err := server.RunStdio(); err != nil {
		slog.Error("server terminated", "error", err)
		os.Exit(1)
	}
}

// levelFromEnv maps the PYTEST_LSP_LOG environment variable to a level.
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("PYTEST_LSP_LOG")) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
