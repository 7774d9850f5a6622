package lsp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/afittestide/asimi/fileedit"
)

// extensionLanguages maps a file extension to the language id used to look
// up both the server registry and the LSP languageId field.
var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".cpp":  "cpp",
	".h":    "c",
}

// LanguageForPath resolves the language id for a file path via the
// extension registry, or "" if unknown.
func LanguageForPath(path string) string {
	return extensionLanguages[filepath.Ext(path)]
}

// Manager owns a lazy map of clients per language, resolves the language for
// a file path, and opens/closes documents per request to avoid leaking dirty
// state, per spec §4.11.
type Manager struct {
	mu          sync.Mutex
	clients     map[string]*Client
	servers     map[string]ServerConfig
	projectRoot string
	logger      *slog.Logger
}

// NewManager constructs a Manager from a per-language server registry
// (config-driven; see SPEC_FULL.md §10's LSP.Servers config section).
func NewManager(servers map[string]ServerConfig, projectRoot string, logger *slog.Logger) *Manager {
	return &Manager{
		clients:     make(map[string]*Client),
		servers:     servers,
		projectRoot: projectRoot,
		logger:      logger,
	}
}

func (m *Manager) clientFor(ctx context.Context, language string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[language]; ok {
		return c, true
	}

	cfg, ok := m.servers[language]
	if !ok {
		return nil, false
	}

	c, err := Start(ctx, cfg, m.projectRoot, m.logger)
	if err != nil {
		m.logger.Warn("lsp: failed to start server, navigation for this language disabled", "language", language, "error", err)
		return nil, false
	}
	m.clients[language] = c
	return c, true
}

// withDocument opens path for the duration of fn and closes it afterward,
// so navigation requests never leak dirty buffers across calls.
func (m *Manager) withDocument(ctx context.Context, path string, fn func(c *Client, uri string) error) error {
	language := LanguageForPath(path)
	if language == "" {
		return nil
	}
	client, ok := m.clientFor(ctx, language)
	if !ok {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	uri := pathToURI(path)

	if err := client.OpenDocument(uri, language, string(content)); err != nil {
		return nil
	}
	defer client.CloseDocument(uri)

	return fn(client, uri)
}

// GotoDefinition resolves the language for path, opens it, and queries the
// server. Errors never propagate — code navigation must not crash the
// agent per spec §4.11.
func (m *Manager) GotoDefinition(ctx context.Context, path string, pos Position) []Location {
	var out []Location
	_ = m.withDocument(ctx, path, func(c *Client, uri string) error {
		locs, _ := c.GotoDefinition(ctx, uri, pos)
		out = locs
		return nil
	})
	return out
}

// FindReferences mirrors GotoDefinition for textDocument/references.
func (m *Manager) FindReferences(ctx context.Context, path string, pos Position) []Location {
	var out []Location
	_ = m.withDocument(ctx, path, func(c *Client, uri string) error {
		locs, _ := c.FindReferences(ctx, uri, pos)
		out = locs
		return nil
	})
	return out
}

// DocumentSymbol mirrors GotoDefinition for textDocument/documentSymbol,
// backing the ace-file_outline tool.
func (m *Manager) DocumentSymbol(ctx context.Context, path string) []Symbol {
	var out []Symbol
	_ = m.withDocument(ctx, path, func(c *Client, uri string) error {
		syms, _ := c.DocumentSymbol(ctx, uri)
		out = syms
		return nil
	})
	return out
}

// GetDiagnostics opens path, pulls diagnostics, and maps them to the
// severity/message/line shape fileedit.DiagnosticsProvider expects. Errors
// never propagate — an unsupported or unreachable server yields an empty
// slice, per spec §4.11 and the LSPUnavailable error kind. This makes
// *Manager satisfy fileedit.DiagnosticsProvider directly.
func (m *Manager) GetDiagnostics(ctx context.Context, path string) ([]fileedit.Diagnostic, error) {
	var out []fileedit.Diagnostic
	_ = m.withDocument(ctx, path, func(c *Client, uri string) error {
		diags, _ := c.PullDiagnostics(ctx, uri)
		for _, d := range diags {
			out = append(out, fileedit.Diagnostic{
				Severity: severityName(d.Severity),
				Message:  d.Message,
				Line:     d.Range.Start.Line + 1,
			})
		}
		return nil
	})
	return out, nil
}

func severityName(sev int) string {
	switch sev {
	case 1:
		return "error"
	case 2:
		return "warning"
	case 3:
		return "information"
	case 4:
		return "hint"
	default:
		return "info"
	}
}

// Shutdown stops every started client.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for lang, c := range m.clients {
		c.Shutdown(ctx)
		delete(m.clients, lang)
	}
}
