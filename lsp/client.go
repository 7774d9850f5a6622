package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ServerConfig names the binary and argv for one language's server, plus
// whether it needs "-s <root>" appended per spec §4.11.
type ServerConfig struct {
	Language      string
	Command       string
	Args          []string
	NeedsRootFlag bool
}

// Capabilities is the minimal static capability set the client declares in
// `initialize`; spec §4.11 only requires a "minimal static" set, not full
// negotiation.
var clientCapabilities = map[string]any{
	"textDocument": map[string]any{
		"definition":     map[string]any{},
		"references":     map[string]any{},
		"hover":          map[string]any{},
		"completion":     map[string]any{},
		"documentSymbol": map[string]any{},
		"diagnostic":     map[string]any{},
	},
}

// serverCaps is the subset of the server's declared capabilities the
// navigation operations check before issuing a request.
type serverCaps struct {
	Definition     bool
	References     bool
	Hover          bool
	Completion     bool
	DocumentSymbol bool
	Diagnostic     bool
}

// Diagnostic is one LSP textDocument/diagnostic entry, trimmed to the
// fields the ide-get_diagnostics tool and the FileEditEngine's post-edit
// check (spec §4.5 step 11) need.
type Diagnostic struct {
	Range struct {
		Start Position `json:"start"`
		End   Position `json:"end"`
	} `json:"range"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source"`
}

// Position is a 0-indexed line/character pair, per the LSP wire format.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Location is a file URI + range.
type Location struct {
	URI   string `json:"uri"`
	Range struct {
		Start Position `json:"start"`
		End   Position `json:"end"`
	} `json:"range"`
}

// Symbol is one entry of a documentSymbol response.
type Symbol struct {
	Name string `json:"name"`
	Kind int    `json:"kind"`
}

// Client is a single-language LSP client. One instance is kept per language
// by Manager.
type Client struct {
	cfg    ServerConfig
	conn   *conn
	caps   serverCaps
	docVer int64
	logger *slog.Logger
}

// Start spawns the configured server, performs initialize/initialized, and
// records its capabilities.
func Start(ctx context.Context, cfg ServerConfig, projectRoot string, logger *slog.Logger) (*Client, error) {
	args := append([]string(nil), cfg.Args...)
	if cfg.NeedsRootFlag && projectRoot != "" {
		args = append(args, "-s", projectRoot)
	}

	c, err := dial(ctx, cfg.Command, args, logger)
	if err != nil {
		return nil, err
	}

	client := &Client{cfg: cfg, conn: c, logger: logger}

	var initResult struct {
		Capabilities map[string]any `json:"capabilities"`
	}
	params := map[string]any{
		"processId":    nil,
		"rootUri":      pathToURI(projectRoot),
		"capabilities": clientCapabilities,
	}
	if err := c.call(ctx, "initialize", params, &initResult); err != nil {
		c.close()
		return nil, fmt.Errorf("lsp: initialize %s: %w", cfg.Language, err)
	}
	if err := c.notify("initialized", map[string]any{}); err != nil {
		c.close()
		return nil, fmt.Errorf("lsp: initialized %s: %w", cfg.Language, err)
	}

	client.caps = decodeCaps(initResult.Capabilities)
	return client, nil
}

func decodeCaps(m map[string]any) serverCaps {
	has := func(key string) bool {
		v, ok := m[key]
		return ok && v != nil && v != false
	}
	return serverCaps{
		Definition:     has("definitionProvider"),
		References:     has("referencesProvider"),
		Hover:          has("hoverProvider"),
		Completion:     has("completionProvider"),
		DocumentSymbol: has("documentSymbolProvider"),
		Diagnostic:     has("diagnosticProvider"),
	}
}

func pathToURI(p string) string {
	if p == "" {
		return ""
	}
	return "file://" + p
}

// OpenDocument sends textDocument/didOpen with a monotonically increasing
// version.
func (c *Client) OpenDocument(uri, languageID, text string) error {
	v := atomic.AddInt64(&c.docVer, 1)
	return c.conn.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    v,
			"text":       text,
		},
	})
}

// CloseDocument sends textDocument/didClose.
func (c *Client) CloseDocument(uri string) error {
	return c.conn.notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

// GotoDefinition returns empty (not error) if the server did not declare the
// capability, per spec §4.11.
func (c *Client) GotoDefinition(ctx context.Context, uri string, pos Position) ([]Location, error) {
	if !c.caps.Definition {
		return nil, nil
	}
	var locs []Location
	if err := c.conn.call(ctx, "textDocument/definition", docPositionParams(uri, pos), &locs); err != nil {
		c.logger.Warn("lsp: definition request failed", "error", err)
		return nil, nil
	}
	return locs, nil
}

// FindReferences returns empty (not error) if unsupported.
func (c *Client) FindReferences(ctx context.Context, uri string, pos Position) ([]Location, error) {
	if !c.caps.References {
		return nil, nil
	}
	params := docPositionParams(uri, pos)
	params["context"] = map[string]any{"includeDeclaration": true}
	var locs []Location
	if err := c.conn.call(ctx, "textDocument/references", params, &locs); err != nil {
		c.logger.Warn("lsp: references request failed", "error", err)
		return nil, nil
	}
	return locs, nil
}

// Hover returns "" if unsupported or on error.
func (c *Client) Hover(ctx context.Context, uri string, pos Position) (string, error) {
	if !c.caps.Hover {
		return "", nil
	}
	var result struct {
		Contents any `json:"contents"`
	}
	if err := c.conn.call(ctx, "textDocument/hover", docPositionParams(uri, pos), &result); err != nil {
		c.logger.Warn("lsp: hover request failed", "error", err)
		return "", nil
	}
	return fmt.Sprintf("%v", result.Contents), nil
}

// Completion returns nil if unsupported or on error.
func (c *Client) Completion(ctx context.Context, uri string, pos Position) ([]string, error) {
	if !c.caps.Completion {
		return nil, nil
	}
	var result struct {
		Items []struct {
			Label string `json:"label"`
		} `json:"items"`
	}
	if err := c.conn.call(ctx, "textDocument/completion", docPositionParams(uri, pos), &result); err != nil {
		c.logger.Warn("lsp: completion request failed", "error", err)
		return nil, nil
	}
	out := make([]string, len(result.Items))
	for i, it := range result.Items {
		out[i] = it.Label
	}
	return out, nil
}

// DocumentSymbol returns nil if unsupported or on error.
func (c *Client) DocumentSymbol(ctx context.Context, uri string) ([]Symbol, error) {
	if !c.caps.DocumentSymbol {
		return nil, nil
	}
	var syms []Symbol
	params := map[string]any{"textDocument": map[string]any{"uri": uri}}
	if err := c.conn.call(ctx, "textDocument/documentSymbol", params, &syms); err != nil {
		c.logger.Warn("lsp: documentSymbol request failed", "error", err)
		return nil, nil
	}
	return syms, nil
}

// PullDiagnostics requests textDocument/diagnostic (LSP 3.17 pull model) and
// returns empty (not error) if unsupported, mirroring the other navigation
// operations.
func (c *Client) PullDiagnostics(ctx context.Context, uri string) ([]Diagnostic, error) {
	if !c.caps.Diagnostic {
		return nil, nil
	}
	var result struct {
		Items []Diagnostic `json:"items"`
	}
	params := map[string]any{"textDocument": map[string]any{"uri": uri}}
	if err := c.conn.call(ctx, "textDocument/diagnostic", params, &result); err != nil {
		c.logger.Warn("lsp: diagnostic request failed", "error", err)
		return nil, nil
	}
	return result.Items, nil
}

func docPositionParams(uri string, pos Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     pos,
	}
}

// Shutdown sends shutdown then exit, closes the connection and waits for the process to exit.
func (c *Client) Shutdown(ctx context.Context) {
	_ = c.conn.call(ctx, "shutdown", nil, nil)
	_ = c.conn.notify("exit", nil)
	c.conn.close()
}
