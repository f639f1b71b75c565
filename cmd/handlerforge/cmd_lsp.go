package main

import (
	"path/filepath"
	"sync"

	"github.com/dhamidi/handlerforge/agent"
	"github.com/spf13/cobra"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "handlerforge-lsp"

// lspServer validates a handlerforge.toml manifest on open/change and
// publishes agent.Diagnose's findings as LSP diagnostics, exactly the
// surface the CLI's "plan" command prints to stderr (see cmd_plan.go).
type lspServer struct {
	classpath []string

	mu   sync.Mutex
	docs map[string]string

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

func newLSPServer(classpath []string) *lspServer {
	s := &lspServer{classpath: classpath, docs: make(map[string]string), version: "0.1.0"}

	s.handler = protocol.Handler{
		Initialize:            s.initialize,
		Initialized:           s.initialized,
		Shutdown:              s.shutdown,
		SetTrace:              s.setTrace,
		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,
	}
	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

func (s *lspServer) run() error {
	return s.server.RunStdio()
}

func (s *lspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *lspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error { return nil }
func (s *lspServer) shutdown(ctx *glsp.Context) error                                        { return nil }
func (s *lspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error        { return nil }

func (s *lspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.mu.Lock()
	s.docs[string(uri)] = params.TextDocument.Text
	s.mu.Unlock()
	s.publishDiagnostics(ctx, uri)
	return nil
}

func (s *lspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) > 0 {
		if whole, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()
			s.publishDiagnostics(ctx, uri)
		}
	}
	return nil
}

func (s *lspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// publishDiagnostics re-parses the manifest named by uri from disk (LSP
// text-sync keeps the editor buffer, but LoadManifest needs a path, the
// same tradeoff the CLI's "plan" command accepts) and runs agent.Diagnose
// against it.
func (s *lspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri) {
	path, err := uriToPath(string(uri))
	if err != nil {
		return
	}

	manifest, err := agent.LoadManifest(path)
	var findings []agent.Diagnostic
	if err != nil {
		findings = []agent.Diagnostic{{Message: err.Error(), Severity: agent.SeverityError}}
	} else {
		findings = agent.Diagnose(dirAmbientSource{dirs: s.classpath}, manifest)
	}

	diagnostics := make([]protocol.Diagnostic, len(findings))
	for i, f := range findings {
		severity := protocol.DiagnosticSeverityError
		if f.Severity == agent.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		source := lspName
		message := f.Message
		if f.Class != "" {
			message = f.Class + ": " + f.Operation + ": " + f.Message
		}
		diagnostics[i] = protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 0},
				End:   protocol.Position{Line: 0, Character: 0},
			},
			Severity: &severity,
			Source:   &source,
			Message:  message,
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func boolPtr(b bool) *bool { return &b }

func uriToPath(uri string) (string, error) {
	const prefix = "file://"
	if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
		return filepath.FromSlash(uri[len(prefix):]), nil
	}
	return uri, nil
}

func newLSPCmd() *cobra.Command {
	var classpath []string

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start a diagnostics server over handlerforge.toml manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := newLSPServer(classpath)
			return server.run()
		},
	}

	cmd.Flags().StringArrayVar(&classpath, "classpath", []string{"."}, "directories to search for handler interface .class files")
	return cmd
}
