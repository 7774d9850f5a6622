package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAlwaysApprovedSkipsConfirm(t *testing.T) {
	g := New(nil, nil)
	g.LoadGlobal([]Entry{{Scope: "global", Tool: "filesystem-read"}})

	called := false
	resp, err := g.Check(context.Background(), "filesystem-read", nil, "", func(ctx context.Context, req Request) (Response, error) {
		called = true
		return Response{Decision: Reject}, nil
	})

	assert.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, ApproveOnce, resp.Decision)
}

func TestCheckAlwaysApprovedHonorsPattern(t *testing.T) {
	g := New(nil, nil)
	g.LoadGlobal([]Entry{{Scope: "global", Tool: "terminal-execute", Pattern: "git status*"}})

	resp, err := g.Check(context.Background(), "terminal-execute", map[string]any{"command": "git status -s"}, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, ApproveOnce, resp.Decision)

	_, err = g.Check(context.Background(), "terminal-execute", map[string]any{"command": "rm -rf /"}, "", func(ctx context.Context, req Request) (Response, error) {
		return Response{Decision: Reject}, nil
	})
	assert.NoError(t, err)
}

func TestCheckYOLOApprovesUnlessCheckerFlagsSensitive(t *testing.T) {
	checker := func(tool string, args map[string]any) bool {
		return tool == "terminal-execute"
	}
	g := New(checker, nil)
	g.YOLO = true

	resp, err := g.Check(context.Background(), "filesystem-read", nil, "", func(ctx context.Context, req Request) (Response, error) {
		t.Fatal("confirm should not be called for non-sensitive tool under YOLO")
		return Response{}, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, ApproveOnce, resp.Decision)

	confirmCalled := false
	resp, err = g.Check(context.Background(), "terminal-execute", nil, "", func(ctx context.Context, req Request) (Response, error) {
		confirmCalled = true
		return Response{Decision: ApproveOnce}, nil
	})
	assert.NoError(t, err)
	assert.True(t, confirmCalled)
	assert.Equal(t, ApproveOnce, resp.Decision)
}

func TestCheckNoConfirmChannelRejects(t *testing.T) {
	g := New(nil, nil)
	resp, err := g.Check(context.Background(), "terminal-execute", nil, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, Reject, resp.Decision)
}

func TestCheckApproveAlwaysPersistsGlobalAndSession(t *testing.T) {
	var persisted []Entry
	g := New(nil, func(e Entry) error {
		persisted = append(persisted, e)
		return nil
	})

	resp, err := g.Check(context.Background(), "filesystem-edit", nil, "*.go", func(ctx context.Context, req Request) (Response, error) {
		return Response{Decision: ApproveAlways}, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, ApproveAlways, resp.Decision)
	assert.Len(t, persisted, 1)
	assert.Equal(t, "filesystem-edit", persisted[0].Tool)

	// Second call for the same tool+pattern is now always-approved.
	called := false
	_, err = g.Check(context.Background(), "filesystem-edit", map[string]any{"path": "main.go"}, "*.go", func(ctx context.Context, req Request) (Response, error) {
		called = true
		return Response{Decision: Reject}, nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestCheckApproveAlwaysPersistFailureSurfacesError(t *testing.T) {
	g := New(nil, func(e Entry) error { return errors.New("disk full") })

	resp, err := g.Check(context.Background(), "filesystem-edit", nil, "", func(ctx context.Context, req Request) (Response, error) {
		return Response{Decision: ApproveAlways}, nil
	})
	assert.Error(t, err)
	assert.Equal(t, ApproveAlways, resp.Decision)
}

func TestRejectionMessage(t *testing.T) {
	assert.Equal(t, "Error: Tool execution rejected by user", RejectionMessage(""))
	assert.Equal(t, "Error: Tool execution rejected by user: too risky", RejectionMessage("too risky"))
}
