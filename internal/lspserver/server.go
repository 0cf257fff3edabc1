// Package lspserver implements the Language Server Protocol surface:
// go-to-definition, references, hover, completion, rename, code actions,
// code lens, symbols, and undeclared-fixture diagnostics, all backed by
// the fixture index and resolver.
package lspserver

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/pytest-lsp/pytest-lsp/internal/analyzer"
	"github.com/pytest-lsp/pytest-lsp/internal/config"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/resolver"
	"github.com/pytest-lsp/pytest-lsp/internal/scanner"
)

const (
	serverName = "pytest-lsp"
	version    = "0.1.0"
)

// Server is the pytest fixture language server.
type Server struct {
	handler protocol.Handler
	glspSrv *glspserver.Server

	cfg      *config.Config
	index    *index.Index
	analyzer *analyzer.Analyzer
	resolver *resolver.Resolver
	scanner  *scanner.Scanner
	watcher  *scanner.Watcher
	docs     *DocumentStore

	rootURI  string
	rootPath string

	// sessionID tags every log line of this connection.
	sessionID string

	scanOnce sync.Once

	// Debouncer for didChange notifications.
	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	// Context for sending notifications (captured from latest request).
	notifyMu sync.Mutex
	notify   glsp.NotifyFunc

	// exitFn is called on the LSP exit notification. Defaults to os.Exit.
	// Overridable for testing.
	exitFn func(int)
}

// New creates a pytest-lsp server over a fresh index.
func New(cfg *config.Config) (*Server, error) {
	ix := index.New()
	an := analyzer.New(ix)
	sc, err := scanner.New(an, ix, cfg.Exclude.Globs)
	if err != nil {
		return nil, err
	}
	if cfg.Venv != "" {
		sc.SetVenvOverride(cfg.Venv)
	}

	s := &Server{
		cfg:       cfg,
		index:     ix,
		analyzer:  an,
		resolver:  resolver.New(ix),
		scanner:   sc,
		docs:      NewDocumentStore(),
		sessionID: uuid.NewString(),
		debounce:  make(map[string]*time.Timer),
		exitFn:    os.Exit,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		Exit:        s.exit,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidSave:   s.textDocumentDidSave,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentRename:         s.textDocumentRename,
		TextDocumentPrepareRename:  s.textDocumentPrepareRename,
		TextDocumentCodeAction:     s.textDocumentCodeAction,
		TextDocumentCodeLens:       s.textDocumentCodeLens,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
		WorkspaceSymbol:            s.workspaceSymbol,
	}

	s.glspSrv = glspserver.NewServer(&s.handler, serverName, false)
	return s, nil
}

// RunStdio starts the server using stdio transport.
func (s *Server) RunStdio() error {
	return s.glspSrv.RunStdio()
}

// initialize handles the LSP initialize request.
func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.captureNotify(ctx)

	if params.RootURI != nil {
		s.rootURI = string(*params.RootURI)
		s.rootPath = uriToPath(s.rootURI)
	} else if params.RootPath != nil {
		s.rootPath = *params.RootPath
		s.rootURI = pathToURI(s.rootPath)
	}
	if s.cfg.Root != "" {
		s.rootPath = s.cfg.Root
		s.rootURI = pathToURI(s.rootPath)
	}
	slog.Info("initialize", "session", s.sessionID, "root", s.rootPath)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: boolPtr(false)},
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{`"`, ",", "("},
	}

	capabilities.RenameProvider = &protocol.RenameOptions{
		PrepareProvider: boolPtr(true),
	}

	capabilities.CodeActionProvider = &protocol.CodeActionOptions{
		CodeActionKinds: []protocol.CodeActionKind{protocol.CodeActionKindQuickFix},
	}

	capabilities.CodeLensProvider = &protocol.CodeLensOptions{}

	v := version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &v,
		},
	}, nil
}

// initialized triggers the workspace scan and file watcher once the
// client is ready. The scan runs in the background; queries served in
// the meantime simply see a partial index.
func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	s.captureNotify(ctx)
	s.ensureWorkspaceScan()
	return nil
}

func (s *Server) ensureWorkspaceScan() {
	s.scanOnce.Do(func() {
		go func() {
			defer func() { _ = recover() }() // don't crash the server on scan panic
			if s.rootPath == "" {
				slog.Warn("no workspace root; skipping scan", "session", s.sessionID)
				return
			}
			if err := s.scanner.ScanWorkspace(context.Background(), s.rootPath); err != nil {
				slog.Error("workspace scan failed", "session", s.sessionID, "error", err)
				return
			}
			s.publishAllOpen()
			s.startWatcher()
		}()
	})
}

// startWatcher begins re-analyzing files changed outside the editor.
func (s *Server) startWatcher() {
	w, err := scanner.NewWatcher(s.cfg.Watch.Debounce, s.cfg.Exclude.Globs, s.onFilesChanged)
	if err != nil {
		slog.Warn("failed to create watcher", "error", err)
		return
	}
	if err := w.Watch(s.rootPath); err != nil {
		slog.Warn("failed to watch workspace", "error", err)
		_ = w.Close()
		return
	}
	s.watcher = w
}

func (s *Server) onFilesChanged(paths []string) {
	ctx := context.Background()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			// Deleted or unreadable: drop its entries.
			s.index.ClearFile(s.index.Canonical(path), "")
			continue
		}
		_ = s.analyzer.Analyze(ctx, path, string(data))
	}
	// A changed conftest can add or remove diagnostics anywhere below it.
	s.publishAllOpen()
}

// shutdown handles the LSP shutdown request.
func (s *Server) shutdown(_ *glsp.Context) error {
	s.debounceMu.Lock()
	for _, t := range s.debounce {
		t.Stop()
	}
	s.debounce = make(map[string]*time.Timer)
	s.debounceMu.Unlock()

	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	return nil
}

// exit terminates the process once the peer has acknowledged shutdown.
func (s *Server) exit(_ *glsp.Context) error {
	s.exitFn(0)
	return nil
}

// setTrace handles the $/setTrace notification (required by some clients).
func (s *Server) setTrace(_ *glsp.Context, _ *protocol.SetTraceParams) error {
	return nil
}

// captureNotify stores the notification function from the context for
// async use (e.g., publishing diagnostics after a debounce).
func (s *Server) captureNotify(ctx *glsp.Context) {
	if ctx == nil {
		return
	}
	s.notifyMu.Lock()
	s.notify = ctx.Notify
	s.notifyMu.Unlock()
}

// sendNotification sends a notification to the client.
func (s *Server) sendNotification(method string, params any) {
	s.notifyMu.Lock()
	fn := s.notify
	s.notifyMu.Unlock()
	if fn != nil {
		fn(method, params)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
