// Package permission implements the confirmation gate every tool call passes
// through before it runs, generalized from the teacher's channel-based
// host-command approval flow (tools.go's HostCommandApprovalRequest /
// hostCommandApprovalChan / requestHostCommandApproval) into the full
// YOLO / session / global always-approved decision set of spec §4.4.
package permission

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// Decision is the user's answer to a confirmation request.
type Decision int

const (
	ApproveOnce Decision = iota
	ApproveAlways
	Reject
	RejectWithReply
)

// Request is sent on the confirmation channel for the UI to answer.
type Request struct {
	Tool    string
	Args    map[string]any
	Pattern string // restriction the tool call would be matched against, if any

	Response chan Response
}

// Response is the UI's answer to a Request.
type Response struct {
	Decision Decision
	Reason   string // set when Decision == RejectWithReply
}

// Entry is a persisted or session-scoped always-approved rule. Pattern is a
// glob restriction over the tool's arguments (e.g. terminal-execute + "git
// status*"); empty Pattern matches any arguments for Tool.
type Entry struct {
	Scope   string // "global" | "session"
	Tool    string
	Pattern string
}

// YOLOChecker decides, for a given tool call, whether YOLO mode may still
// auto-approve it. Tools classified as always-sensitive (destructive shell,
// rm/force operations, arbitrary code execution outside the sandbox) must
// return needsConfirmation=true regardless of the YOLO flag, per spec §4.4
// step 1.
type YOLOChecker func(tool string, args map[string]any) (needsConfirmation bool)

// Gate is the permission gate. Confirm is supplied by the Orchestrator/UI
// layer; it blocks until the user answers or ctx is cancelled.
type Gate struct {
	mu sync.RWMutex

	YOLO             bool
	YOLOChecker      YOLOChecker
	sessionApproved  []Entry
	globalApproved   []Entry
	persistGlobal    func(Entry) error
}

// New constructs a Gate. persistGlobal may be nil (in which case
// approve_always only affects the in-process global list, not disk).
func New(yoloChecker YOLOChecker, persistGlobal func(Entry) error) *Gate {
	return &Gate{YOLOChecker: yoloChecker, persistGlobal: persistGlobal}
}

// LoadGlobal seeds the persisted always-approved list, e.g. at startup.
func (g *Gate) LoadGlobal(entries []Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globalApproved = append([]Entry(nil), entries...)
}

func matches(e Entry, tool string, args map[string]any) bool {
	if e.Tool != tool {
		return false
	}
	if e.Pattern == "" {
		return true
	}
	// Arguments are matched against the pattern through their canonical
	// string form (e.g. the "command" field for terminal-execute), mirroring
	// the teacher's regex-over-command-string approach but as a glob so a
	// single Entry shape serves every tool's pattern restriction.
	var subject string
	if cmd, ok := args["command"].(string); ok {
		subject = cmd
	} else if p, ok := args["path"].(string); ok {
		subject = p
	}
	ok, _ := path.Match(e.Pattern, subject)
	return ok
}

func (g *Gate) isAlwaysApproved(tool string, args map[string]any) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.sessionApproved {
		if matches(e, tool, args) {
			return true
		}
	}
	for _, e := range g.globalApproved {
		if matches(e, tool, args) {
			return true
		}
	}
	return false
}

// Confirm is supplied by the caller to perform the actual user-facing
// confirmation; it is not owned by Gate so the same Gate works whether the
// UI is the bubbletea TUI or a headless --print harness.
type Confirm func(ctx context.Context, req Request) (Response, error)

// Check runs the full algorithm of spec §4.4 for one tool call. confirm is
// invoked only when a user decision is actually required.
func (g *Gate) Check(ctx context.Context, tool string, args map[string]any, pattern string, confirm Confirm) (Response, error) {
	if g.isAlwaysApproved(tool, args) {
		return Response{Decision: ApproveOnce}, nil
	}

	if g.YOLO {
		needsConfirmation := false
		if g.YOLOChecker != nil {
			needsConfirmation = g.YOLOChecker(tool, args)
		}
		if !needsConfirmation {
			return Response{Decision: ApproveOnce}, nil
		}
	}

	if confirm == nil {
		return Response{Decision: Reject, Reason: "no confirmation channel available"}, nil
	}

	resp, err := confirm(ctx, Request{Tool: tool, Args: args, Pattern: pattern})
	if err != nil {
		return Response{}, fmt.Errorf("permission confirmation failed: %w", err)
	}

	if resp.Decision == ApproveAlways {
		e := Entry{Scope: "session", Tool: tool, Pattern: pattern}
		g.mu.Lock()
		g.sessionApproved = append(g.sessionApproved, e)
		g.globalApproved = append(g.globalApproved, e)
		g.mu.Unlock()
		if g.persistGlobal != nil {
			if err := g.persistGlobal(e); err != nil {
				return resp, fmt.Errorf("approved but failed to persist always-approved entry: %w", err)
			}
		}
	}

	return resp, nil
}

// RejectionMessage formats the synthesized tool-message content for a
// rejected call per spec §4.3 step 2.
func RejectionMessage(reason string) string {
	if reason == "" {
		return "Error: Tool execution rejected by user"
	}
	return fmt.Sprintf("Error: Tool execution rejected by user: %s", reason)
}
