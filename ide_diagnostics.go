package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/afittestide/asimi/lsp"
)

// IdeDiagnosticsTool backs ide-get_diagnostics, exposing the same
// lsp.Manager.GetDiagnostics FileEditEngine already calls internally after
// every edit (§4.5 step 11) as a standalone, model-callable tool for
// checking a file's current diagnostics outside of an edit.
type IdeDiagnosticsTool struct{ manager *lsp.Manager }

type ideDiagnosticsInput struct {
	Path string `json:"path"`
}

func (t IdeDiagnosticsTool) Name() string { return "ide-get_diagnostics" }

func (t IdeDiagnosticsTool) Description() string {
	return "Returns the language server's current diagnostics (errors, warnings) for a file. The input should be a JSON object with a 'path' field."
}

func (t IdeDiagnosticsTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string", "description": "File path"}},
		"required":   []string{"path"},
	}
}

func (t IdeDiagnosticsTool) Call(ctx context.Context, input string) (string, error) {
	var params ideDiagnosticsInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if t.manager == nil {
		return "[]", nil
	}
	diags, _ := t.manager.GetDiagnostics(ctx, params.Path)
	out, _ := json.Marshal(diags)
	return string(out), nil
}

func (t IdeDiagnosticsTool) Format(input, result string, err error) string {
	return "Diagnostics\n" + treeFinalPrefix + result
}
