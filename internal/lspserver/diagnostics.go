package lspserver

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/pytest-lsp/pytest-lsp/internal/observability"
)

const diagnosticSource = "pytest-lsp"

// textDocumentDidOpen handles the textDocument/didOpen notification.
func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.captureNotify(ctx)
	s.ensureWorkspaceScan()
	doc := s.docs.Open(
		string(params.TextDocument.URI),
		int32(params.TextDocument.Version),
		params.TextDocument.Text,
	)
	s.analyzeAndPublish(doc)
	return nil
}

// textDocumentDidChange handles the textDocument/didChange notification.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.captureNotify(ctx)
	// With full sync, the last content change is the complete document.
	var content string
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = c.Text
		case protocol.TextDocumentContentChangeEvent:
			content = c.Text
		}
	}

	doc := s.docs.Change(
		string(params.TextDocument.URI),
		int32(params.TextDocument.Version),
		content,
	)

	// Debounce: delay analysis to avoid thrashing during rapid edits.
	s.debounceMu.Lock()
	if t, ok := s.debounce[doc.URI]; ok {
		t.Stop()
	}
	s.debounce[doc.URI] = time.AfterFunc(s.cfg.Watch.Debounce, func() {
		defer func() { _ = recover() }() // don't crash the server on analysis panic
		if d := s.docs.Get(doc.URI); d != nil {
			s.analyzeAndPublish(d)
		}
	})
	s.debounceMu.Unlock()
	return nil
}

// textDocumentDidSave handles the textDocument/didSave notification.
func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.captureNotify(ctx)
	uri := string(params.TextDocument.URI)

	// Cancel any pending debounce and publish immediately.
	s.debounceMu.Lock()
	if t, ok := s.debounce[uri]; ok {
		t.Stop()
		delete(s.debounce, uri)
	}
	s.debounceMu.Unlock()

	if doc := s.docs.Get(uri); doc != nil {
		s.analyzeAndPublish(doc)
	}
	return nil
}

// textDocumentDidClose handles the textDocument/didClose notification.
func (s *Server) textDocumentDidClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	s.debounceMu.Lock()
	if t, ok := s.debounce[uri]; ok {
		t.Stop()
		delete(s.debounce, uri)
	}
	s.debounceMu.Unlock()

	// Clear diagnostics for the closed file.
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: []protocol.Diagnostic{},
	})

	s.docs.Close(uri)
	return nil
}

// analyzeAndPublish re-analyzes an open document and publishes its
// undeclared-fixture diagnostics.
func (s *Server) analyzeAndPublish(doc *Document) {
	path := uriToPath(doc.URI)
	// Parse errors clear the file's entries; only the prior diagnostics
	// are withdrawn below.
	_ = s.analyzer.Analyze(context.Background(), path, doc.Content)
	s.publishDiagnostics(doc.URI)
}

// publishDiagnostics emits one warning per undeclared fixture recorded
// for the file.
func (s *Server) publishDiagnostics(uri string) {
	canonical := s.index.Canonical(uriToPath(uri))

	var diags []protocol.Diagnostic
	for _, entry := range s.index.UndeclaredFor(canonical) {
		severity := protocol.DiagnosticSeverityWarning
		source := diagnosticSource
		diags = append(diags, protocol.Diagnostic{
			Range:    lineSpanRange(entry.Line, entry.StartChar, entry.EndChar),
			Severity: &severity,
			Source:   &source,
			Message:  fmt.Sprintf("'%s' used but not declared as parameter", entry.Name),
		})
	}
	observability.DiagnosticsPublished.Add(float64(len(diags)))

	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: diags,
	})
}

// publishAllOpen refreshes diagnostics for every open document.
func (s *Server) publishAllOpen() {
	for _, doc := range s.docs.All() {
		s.publishDiagnostics(doc.URI)
	}
}
