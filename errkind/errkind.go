// Package errkind names the neutral error categories the conversation engine
// distinguishes between when deciding how to react to a failure: retry, fold
// into a tool result, surface to the user, or let it escape to the process.
package errkind

import (
	"errors"
	"fmt"
)

var (
	// UserCancelled marks an abort triggered by the user's own cancel signal.
	// Never logged as an error; triggers cleanup and a discontinued marker.
	UserCancelled = errors.New("cancelled by user")

	// BackendTransient marks a model-stream error the engine should retry.
	BackendTransient = errors.New("transient backend error")

	// BackendFatal marks a model-stream error that ends the turn.
	BackendFatal = errors.New("fatal backend error")

	// ToolRejected marks a tool call the permission gate refused.
	ToolRejected = errors.New("tool execution rejected")

	// ToolFailed marks a tool call that ran and returned an error.
	ToolFailed = errors.New("tool execution failed")

	// HookError marks a lifecycle hook failure, surfaced on its own channel.
	HookError = errors.New("hook error")

	// PermissionDenied is ToolRejected's engine-level alias.
	PermissionDenied = ToolRejected

	// TokenOverflow marks a tool result the limiter had to truncate.
	TokenOverflow = errors.New("tool result exceeded token limit")

	// SnapshotFailure marks a best-effort backup that could not be written.
	SnapshotFailure = errors.New("snapshot write failed")

	// LSPUnavailable marks a language server that could not be reached.
	LSPUnavailable = errors.New("language server unavailable")
)

// Wrap annotates err with msg while keeping it matchable against kind via
// errors.Is.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return errors.Join(kind, errors.New(msg))
	}
	return errors.Join(kind, fmt.Errorf("%s: %w", msg, err))
}
