package main

import (
	"context"
	"encoding/json"
	"strings"

	lctools "github.com/tmc/langchaingo/tools"

	"github.com/afittestide/asimi/permission"
	"github.com/afittestide/asimi/tokenlimit"
)

// ToolCallResult is delivered on the channel Schedule returns.
type ToolCallResult struct {
	Output string
	Error  error
}

// CoreToolScheduler runs tool calls on their own goroutine and reports back
// over a channel, grounded on the same goroutine-plus-channel idiom
// PodmanShellRunner.readStream uses for its own async output plumbing. It
// additionally gates every call through a PermissionGate and truncates
// oversized results through a TokenLimiter before they reach the model.
type CoreToolScheduler struct {
	notify  NotifyFunc
	gate    *permission.Gate
	limiter *tokenlimit.Limiter
}

// NewCoreToolScheduler constructs a scheduler with no gate or limiter
// configured; callers wire them in afterward via SetPermissionGate and
// SetTokenLimiter once those collaborators are built; nil is a safe default.
func NewCoreToolScheduler(notify NotifyFunc) *CoreToolScheduler {
	return &CoreToolScheduler{notify: notify}
}

// SetPermissionGate wires in the confirmation gate every scheduled call
// passes through before running.
func (s *CoreToolScheduler) SetPermissionGate(gate *permission.Gate) {
	s.gate = gate
}

// SetTokenLimiter wires in the truncation applied to every tool result.
func (s *CoreToolScheduler) SetTokenLimiter(limiter *tokenlimit.Limiter) {
	s.limiter = limiter
}

// alwaysSensitivePatterns names shell-command substrings YOLO mode must
// never auto-approve, per spec §4.4 step 1's "destructive shell, rm/force
// operations, arbitrary code execution outside sandbox" carve-out.
var alwaysSensitivePatterns = []string{
	"rm -rf", "rm -fr", " --force", " -f ", "sudo ", "dd if=", "mkfs", ":(){ :|:& };:",
}

// yoloPermissionChecker implements permission.YOLOChecker: it returns true
// (confirmation still required even under YOLO) for terminal-execute calls
// that look destructive; every other tool is auto-approved under YOLO.
func yoloPermissionChecker(tool string, args map[string]any) bool {
	if tool != "terminal-execute" {
		return false
	}
	cmd, _ := args["command"].(string)
	for _, pattern := range alwaysSensitivePatterns {
		if strings.Contains(cmd, pattern) {
			return true
		}
	}
	return false
}

// gatedTools names the tools that mutate state or leave the sandbox, the
// only ones the permission gate is consulted for; read-only and navigation
// tools (filesystem-read, ace-*, codebase-search, ...) always run directly.
var gatedTools = map[string]bool{
	"terminal-execute":       true,
	"filesystem-create":      true,
	"filesystem-edit":        true,
	"filesystem-edit_search": true,
	"filesystem-undo":        true,
	"skill-execute":          true,
}

// gatePattern extracts the pattern the permission gate should match this
// call's always-approved entries against: the shell command for
// terminal-execute, otherwise the path argument for filesystem tools.
func gatePattern(toolName, argsJSON string) string {
	var raw map[string]any
	if json.Unmarshal([]byte(argsJSON), &raw) != nil {
		return ""
	}
	if toolName == "terminal-execute" {
		if cmd, ok := raw["command"].(string); ok {
			return cmd
		}
		return ""
	}
	if path, ok := raw["path"].(string); ok {
		return path
	}
	return ""
}

// Schedule runs tool.Call(argsJSON) on its own goroutine after passing it
// through the permission gate (when configured), and returns a channel
// delivering exactly one ToolCallResult.
func (s *CoreToolScheduler) Schedule(ctx context.Context, tool lctools.Tool, argsJSON string) <-chan ToolCallResult {
	ch := make(chan ToolCallResult, 1)

	go func() {
		var raw map[string]any
		_ = json.Unmarshal([]byte(argsJSON), &raw)

		if s.gate != nil && gatedTools[tool.Name()] {
			resp, err := s.gate.Check(ctx, tool.Name(), raw, gatePattern(tool.Name(), argsJSON), s.confirm)
			if err != nil {
				ch <- ToolCallResult{Error: err}
				return
			}
			if resp.Decision == permission.Reject || resp.Decision == permission.RejectWithReply {
				ch <- ToolCallResult{Output: permission.RejectionMessage(resp.Reason)}
				return
			}
		}

		out, err := tool.Call(ctx, argsJSON)
		if err == nil && s.limiter != nil {
			out = s.limiter.WrapToolResultWithTokenLimit(out, tool.Name(), tokenlimit.DefaultMax, nil)
		}
		ch <- ToolCallResult{Output: out, Error: err}
	}()

	return ch
}

// confirm routes a permission request to the UI via the notify channel and
// blocks on the request's own response channel, mirroring the teacher's
// hostCommandApprovalChan round trip.
func (s *CoreToolScheduler) confirm(ctx context.Context, req permission.Request) (permission.Response, error) {
	if s.notify == nil {
		return permission.Response{Decision: permission.Reject, Reason: "no confirmation UI configured"}, nil
	}
	s.notify(ToolConfirmationRequestMsg{Request: req})
	select {
	case resp := <-req.Response:
		return resp, nil
	case <-ctx.Done():
		return permission.Response{}, ctx.Err()
	}
}

// ToolConfirmationRequestMsg is the notification the TUI observes to render
// the approve/reject prompt for a gated tool call.
type ToolConfirmationRequestMsg struct {
	Request permission.Request
}
