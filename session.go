package main

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	lctools "github.com/tmc/langchaingo/tools"

	"github.com/afittestide/asimi/errkind"
	"github.com/afittestide/asimi/pending"
	"github.com/afittestide/asimi/permission"
	"github.com/afittestide/asimi/subagent"
	"github.com/afittestide/asimi/tokenlimit"
)

const sandboxOS = "debian"

// NotifyFunc is a function that handles notifications
type NotifyFunc func(any)

// Session is a lightweight chat loop that uses llms.Model directly
// and native provider tool/function-calling. It executes tools via the
// existing CoreToolScheduler and keeps conversation state locally.
type Session struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	FirstPrompt string    `json:"first_prompt"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	WorkingDir  string    `json:"working_dir"`
	ProjectSlug string    `json:"project_slug,omitempty"`

	Messages     []llms.MessageContent `json:"messages"`
	ContextFiles map[string]string     `json:"context_files"`
	MessageCount int                   `json:"message_count,omitempty"` // For list views, avoids loading full messages

	llm                     llms.Model              `json:"-"`
	toolCatalog             map[string]lctools.Tool `json:"-"`
	toolDefs                []llms.Tool             `json:"-"`
	lastToolCallKey         string                  `json:"-"`
	toolCallRepetitionCount int                     `json:"-"`
	scheduler               *CoreToolScheduler      `json:"-"`
	notify                  NotifyFunc              `json:"-"`
	accumulatedContent      strings.Builder         `json:"-"`
	config                  *LLMConfig              `json:"-"`
	startTime               time.Time               `json:"-"`

	// Pending holds user input submitted while a turn is still streaming. It
	// is drained between rounds rather than appended mid-stream, so a
	// mid-flight message never interleaves with an in-progress tool call.
	// A sub-agent Session shares the parent's Pending queue (rather than
	// owning a fresh one) so input the user types while a sub-agent is
	// running can still be routed to it by instanceID, per spec §4.8 step 6.
	Pending *pending.Queue `json:"-"`

	// instanceID is "" for the main conversation, or the sub-agent instance
	// id this Session was built for; it selects which messages drainPending
	// pulls off the shared Pending queue.
	instanceID string `json:"-"`

	// special holds non-persisted context injected into the next round only
	// (e.g. reminders, pending-queue drains folded into the next user turn).
	// It never enters s.Messages and is cleared once consumed.
	special []string `json:"-"`

	// repoInfo is retained so a subagent-execute call can build a sibling
	// restricted Session sharing the parent's model/config/project root.
	repoInfo RepoInfo `json:"-"`

	// Todos and UsefulInfo back the todo-* and useful-info-* tool families;
	// their rendered snapshots are folded into the context layer every
	// round (never persisted into s.Messages), per spec §9.
	Todos      *TodoList       `json:"-"`
	UsefulInfo *UsefulInfoList `json:"-"`

	// askUser backs askuser-ask_question; routed to the TUI by default, or
	// to the parent session's question UI when this Session is a sub-agent
	// (spec §4.8 step 7).
	askUser AskUserFunc `json:"-"`

	// subagentRuntime drives subagent-execute; nil for a sub-agent's own
	// (restricted) Session, since a sub-agent must not itself spawn nested
	// agents unless its config explicitly allows recursion.
	subagentRuntime *subagent.Runtime `json:"-"`

	// Token counts - updated when messages/context changes
	systemPromptTokens int `json:"-"`
	systemToolsTokens  int `json:"-"`
	memoryFilesTokens  int `json:"-"`
	messagesTokens     int `json:"-"`
}

// formatMetadata returns the metadata header used by export helpers.
func (s *Session) formatMetadata(exportType ExportType, exportedAt time.Time) string {
	var b strings.Builder
	exported := exportedAt.Format("2006-01-02 15:04:05")

	b.WriteString(fmt.Sprintf("**Asimi Version:** %s \n", version))
	b.WriteString(fmt.Sprintf("**Export Type:** %s\n", exportType))
	b.WriteString(fmt.Sprintf("**Session ID:** %s | **Working Directory:** %s\n", s.ID, s.WorkingDir))
	b.WriteString(fmt.Sprintf("**Provider:** %s | **Model:** %s\n", s.Provider, s.Model))
	b.WriteString(fmt.Sprintf("**Created:** %s | **Last Updated:** %s | **Exported:** %s\n",
		s.CreatedAt.Format("2006-01-02 15:04:05"),
		s.LastUpdated.Format("2006-01-02 15:04:05"),
		exported))
	if s.ProjectSlug != "" {
		b.WriteString(fmt.Sprintf("**Project:** %s\n", s.ProjectSlug))
	}

	return b.String()
}

// No syncMessages method needed anymore - we only use Messages

// resetStreamBuffer safely resets the accumulated content buffer
func (s *Session) resetStreamBuffer() {
	s.accumulatedContent.Reset()
}

// getStreamBuffer returns the current accumulated content and optionally resets it
func (s *Session) getStreamBuffer(reset bool) string {
	content := s.accumulatedContent.String()
	if reset {
		s.accumulatedContent.Reset()
	}
	return content
}

// notification messages
type streamChunkMsg string
type streamReasoningChunkMsg string
type streamStartMsg struct{}
type streamCompleteMsg struct{}
type streamInterruptedMsg struct{ partialContent string }

// discontinuedMsg is spec §4.1 cancellation step (d)'s marker: emitted once
// per cancelled turn, independent of whatever partial content the UI was
// showing, so a listener can record "this turn was discontinued" without
// inferring it from the absence of a streamCompleteMsg.
type discontinuedMsg struct{ instanceID string }
type streamErrorMsg struct{ err error }
type streamMaxTurnsExceededMsg struct{ maxTurns int }
type streamMaxTokensReachedMsg struct{ content string }
type containerLaunchMsg struct{ message string }

// Prompt partials and template used by the session's system prompt.
var sessPromptPartials = map[string]any{
	"SandboxStatus": "none",
	"UserMemory":    "",
	"Env":           "",
	"ReadFile":      "filesystem-read",
	"WriteFile":     "filesystem-create",
	"Grep":          "grep",
	"Glob":          "glob",
	"Edit":          "filesystem-edit",
	"Shell":         "terminal-execute",
	"ReadManyFiles": "filesystem-read_many",
	"Memory":        "",
	"LS":            "filesystem-list",
	"history":       "",
}

//go:embed prompts/system_prompt.tmpl
var sessSystemPromptTemplate string

// NewSession creates a new Session instance with a system prompt and tools.
func NewSession(llm llms.Model, cfg *Config, repoInfo RepoInfo, toolNotify NotifyFunc) (*Session, error) {
	now := time.Now()
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:          generateSessionID(),
		CreatedAt:   now,
		LastUpdated: now,
		WorkingDir:  workingDir,
		llm:         llm,
		toolCatalog: map[string]lctools.Tool{},
		notify:      toolNotify,
		repoInfo:    repoInfo,
		Todos:       NewTodoList(),
		UsefulInfo:  NewUsefulInfoList(),
	}
	if cfg != nil {
		s.config = &cfg.LLM
		s.Provider = cfg.LLM.Provider
		s.Model = cfg.LLM.Model
		// Set default maxTurns if not configured
	} else {
		// Create default config if none provided
		s.config = &LLMConfig{}
	}
	if s.config.MaxTurns <= 0 {
		s.config.MaxTurns = 999
	}

	// Build system prompt from the existing template and partials, same as the agent.
	partials := make(map[string]any, len(sessPromptPartials))
	for k, v := range sessPromptPartials {
		partials[k] = v
	}
	partials["Env"] = sessBuildEnvBlock(repoInfo)

	pt := prompts.PromptTemplate{
		Template:         sessSystemPromptTemplate,
		TemplateFormat:   prompts.TemplateFormatGoTemplate,
		InputVariables:   []string{"input", "agent_scratchpad"},
		PartialVariables: partials,
	}

	// Render with empty input/scratchpad since this is a system message.
	sys, err := pt.Format(map[string]any{"input": "", "agent_scratchpad": ""})
	if err != nil {
		return nil, fmt.Errorf("formatting system prompt: %w", err)
	}
	var parts []llms.ContentPart
	if s.config != nil && s.config.Provider == "anthropic" {
		parts = append(parts, llms.TextPart("You are Claude Code, Anthropic's official CLI for Claude."))
	}
	parts = append(parts, llms.TextPart(sys))

	// Add AGENTS.md to system message if it exists
	projectContext := readProjectContext()
	if projectContext != "" {
		parts = append(parts, llms.TextPart(fmt.Sprintf("\n--- Project specific directions from: AGENTS.md ---\n%s\n--- End of Directions from: AGENTS.md ---", projectContext)))
	}

	if s.config != nil && s.config.Provider == "ollama" {
		var builder strings.Builder
		for _, part := range parts {
			if textPart, ok := part.(llms.TextContent); ok {
				if builder.Len() > 0 {
					builder.WriteString("\n\n")
				}
				builder.WriteString(textPart.Text)
			}
		}
		parts = []llms.ContentPart{llms.TextPart(builder.String())}
	}

	s.Messages = append(s.Messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: parts,
	})

	s.askUser = notifyAskUser(s.notify)
	s.subagentRuntime = buildSubAgentRuntime(cfg, s)

	// Build tool schema for the model and execution catalog for the scheduler.
	s.toolDefs, s.toolCatalog = buildLLMTools(cfg, s)
	s.scheduler = NewCoreToolScheduler(s.notify)
	s.scheduler.SetTokenLimiter(tokenlimit.New())
	s.scheduler.SetPermissionGate(permission.New(yoloPermissionChecker, nil))
	s.ContextFiles = make(map[string]string)
	s.Pending = pending.New()
	s.startTime = time.Now()
	s.updateTokenCounts()
	return s, nil
}

// buildSubAgentRuntime seeds a subagent.Runtime from cfg.SubAgents, wiring
// its EngineFactory to construct a sibling restricted Session sharing this
// Session's model, config, and project root (spec §4.8 step 2). Returns nil
// if cfg has no sub-agent entries configured.
func buildSubAgentRuntime(cfg *Config, parent *Session) *subagent.Runtime {
	if cfg == nil || len(cfg.SubAgents) == 0 {
		return nil
	}
	entries := make([]subagent.Config, 0, len(cfg.SubAgents))
	for _, e := range cfg.SubAgents {
		entries = append(entries, subagent.Config{
			ID:            e.ID,
			Role:          e.Role,
			AllowedTools:  e.AllowedTools,
			Model:         e.Model,
			SystemPrompt:  e.SystemPrompt,
			ConfigProfile: e.ConfigProfile,
		})
	}
	registry := subagent.NewRegistry(entries)

	factory := func(ctx context.Context, sc subagent.Config, allowed func(string) bool, instanceID string, askUser func(context.Context, string, []string) (string, error)) (subagent.Engine, error) {
		sub, err := NewRestrictedSession(parent.llm, &Config{LLM: *parent.config, SubAgents: cfg.SubAgents}, parent.repoInfo, parent.notify, allowed)
		if err != nil {
			return nil, err
		}
		// A sub-agent's own askuser-* calls are rerouted to the parent's
		// question UI (step 7) via the adapted callback Execute supplies,
		// rather than this Session's own default TUI routing.
		sub.askUser = askUser
		// Share the parent's PendingMessageQueue so input the user types
		// while this sub-agent runs can be routed to it by instanceID
		// instead of landing (or being lost) in a queue nobody drains.
		sub.Pending = parent.Pending
		sub.instanceID = instanceID
		// Sub-agents never recursively spawn further sub-agents unless the
		// registry explicitly allows it (spec §4.8's closing paragraph);
		// leaving subagentRuntime nil makes subagent-execute absent from the
		// restricted tool catalog's source list entirely.
		sub.subagentRuntime = nil
		return sub, nil
	}

	return subagent.NewRuntime(registry, factory, nil)
}

// NewRestrictedSession builds a Session scoped to a filtered tool catalog,
// for a sub-agent invocation (spec §4.8 step 2's "restricted, unpersisted
// nested conversation"). allowedTool is consulted once, immediately after
// the full catalog is built, and the session is otherwise identical to one
// from NewSession — it just never sees tools outside its allow-list.
func NewRestrictedSession(llm llms.Model, cfg *Config, repoInfo RepoInfo, toolNotify NotifyFunc, allowedTool func(string) bool) (*Session, error) {
	s, err := NewSession(llm, cfg, repoInfo, toolNotify)
	if err != nil {
		return nil, err
	}
	if allowedTool == nil {
		return s, nil
	}
	filteredDefs := make([]llms.Tool, 0, len(s.toolDefs))
	filteredCatalog := make(map[string]lctools.Tool, len(s.toolCatalog))
	for _, def := range s.toolDefs {
		if def.Function != nil && allowedTool(def.Function.Name) {
			filteredDefs = append(filteredDefs, def)
			filteredCatalog[def.Function.Name] = s.toolCatalog[def.Function.Name]
		}
	}
	s.toolDefs = filteredDefs
	s.toolCatalog = filteredCatalog
	return s, nil
}

// EnqueuePending buffers user input for the next round, optionally routed to
// a specific sub-agent instance; satisfies subagent.Engine.
func (s *Session) EnqueuePending(text string, images []string, targetInstanceID string) {
	if s.Pending == nil {
		s.Pending = pending.New()
	}
	s.Pending.Enqueue(text, images, targetInstanceID)
}

// addSpecialMessage queues non-persisted text to be folded into the prompt
// context of the next round only.
func (s *Session) addSpecialMessage(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.special = append(s.special, text)
}

// drainSpecialMessages returns and clears the queued special-message text,
// joined with blank lines.
func (s *Session) drainSpecialMessages() string {
	if len(s.special) == 0 {
		return ""
	}
	out := strings.Join(s.special, "\n\n")
	s.special = nil
	return out
}

// drainPending pulls any user input queued while the previous round was
// streaming and folds it into a special message for the next round, so a
// message typed mid-turn is never lost and never interleaves with an
// in-flight tool call.
func (s *Session) drainPending() {
	if s.Pending == nil {
		return
	}
	text, _, drained := s.Pending.DrainFor(s.instanceID)
	if len(drained) == 0 {
		return
	}
	s.addSpecialMessage("Additional input received while responding:\n" + text)
}

// messageText concatenates the text parts of a message, ignoring tool calls
// and tool responses.
func messageText(msg llms.MessageContent) string {
	var parts []string
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// discontinueTurn implements spec §4.1 cancellation steps (b)-(d). It never
// persists the in-progress assistant content, truncates the tail back to
// the last complete round (a dangling user message, or an assistant whose
// tool_calls were never resolved) so the session log reads exactly as it
// did before the turn, and restores the discarded text to the pending
// queue instead of dropping it — scenario S2's "pending input buffer
// contains original user text". sanitizeMessages already implements the
// unresolved-tool_calls half of the tail cleanup (used on every turn start
// to recover from a prior interruption); this adds the dangling-user-
// message half and the pending-queue restore.
func (s *Session) discontinueTurn(originalPrompt string) {
	s.sanitizeMessages()

	var restored []string
	for len(s.Messages) > 0 && s.Messages[len(s.Messages)-1].Role == llms.ChatMessageTypeHuman {
		last := s.Messages[len(s.Messages)-1]
		restored = append([]string{messageText(last)}, restored...)
		s.Messages = s.Messages[:len(s.Messages)-1]
	}
	s.updateTokenCounts()

	// Step (d): emit the discontinued marker regardless of whether there was
	// any dangling text to restore — the engine aborted this turn either way.
	slog.Info("discontinued", "instance", s.instanceID)
	if s.notify != nil {
		s.notify(discontinuedMsg{instanceID: s.instanceID})
	}

	restoreText := strings.Join(restored, "\n\n")
	if strings.TrimSpace(restoreText) == "" {
		restoreText = originalPrompt
	}
	if strings.TrimSpace(restoreText) == "" {
		return
	}
	if s.Pending == nil {
		s.Pending = pending.New()
	}
	s.Pending.RestoreHead(pending.Message{Text: restoreText, TargetInstanceID: s.instanceID})
}

// AddContextFile adds file content to the context for the next prompt
func (s *Session) AddContextFile(path, content string) {
	s.ContextFiles[path] = content
	// Invalidate context cache since context files changed
	s.updateTokenCounts()
}

// ClearContext removes all dynamically added file content from the context
func (s *Session) ClearContext() {
	s.ContextFiles = make(map[string]string)
	// Invalidate context cache since context files changed
	s.updateTokenCounts()
}

// ClearHistory clears the conversation history but keeps the system message
// TODO: rename to ClearMessages
func (s *Session) ClearHistory() {
	// Keep only the system message (first message)
	if len(s.Messages) > 0 && s.Messages[0].Role == llms.ChatMessageTypeSystem {
		s.Messages = s.Messages[:1]
	} else {
		s.Messages = []llms.MessageContent{}
	}

	// Reset tool call tracking
	s.lastToolCallKey = ""
	s.toolCallRepetitionCount = 0

	// Invalidate context cache since messages changed
	s.updateTokenCounts()

	// Reset session start time
	s.startTime = time.Now()

	s.ClearContext()
}

// HasContextFiles returns true if there are files in the context
func (s *Session) HasContextFiles() bool {
	return len(s.ContextFiles) > 0
}

// GetContextFiles returns a copy of the context files map
func (s *Session) GetContextFiles() map[string]string {
	result := make(map[string]string)
	for k, v := range s.ContextFiles {
		result[k] = v
	}
	return result
}

// buildPromptWithContext builds a prompt that includes all file content
func (s *Session) buildPromptWithContext(userPrompt string) string {
	if len(s.ContextFiles) == 0 {
		return userPrompt
	}

	var fileContents []string
	for path, content := range s.ContextFiles {
		fileContents = append(fileContents, fmt.Sprintf("--- Context from: %s ---\n%s\n--- End of Context from: %s ---", path, content, path))
	}

	return strings.Join(fileContents, "\n\n") + "\n" + userPrompt
}

// getToolCallKey generates a unique key for a tool call based on name and arguments
func (s *Session) getToolCallKey(name, argsJSON string) string {
	keyString := fmt.Sprintf("%s:%s", name, argsJSON)
	hash := sha256.Sum256([]byte(keyString))
	return hex.EncodeToString(hash[:])
}

// checkToolCallLoop detects if the same tool call is being repeated
func (s *Session) checkToolCallLoop(name, argsJSON string) bool {
	const toolCallLoopThreshold = 3 // More conservative than gemini-cli's 5

	key := s.getToolCallKey(name, argsJSON)
	if s.lastToolCallKey == key {
		s.toolCallRepetitionCount++
	} else {
		s.lastToolCallKey = key
		s.toolCallRepetitionCount = 1
	}

	if s.toolCallRepetitionCount >= toolCallLoopThreshold {
		slog.Warn("tool call loop detected", "tool", name, "count", s.toolCallRepetitionCount)
		return true
	}

	return false
}

// sanitizeMessages removes any trailing assistant messages with tool calls
// that don't have corresponding tool responses. This prevents errors when the agent
// is interrupted mid-execution. Can be disabled via config.
func (s *Session) sanitizeMessages() {
	// Check if sanitization is disabled
	if s.config != nil && s.config.DisableContextSanitization {
		return
	}

	if len(s.Messages) == 0 {
		return
	}

	for len(s.Messages) > 0 {
		lastIdx := len(s.Messages) - 1
		lastMsg := s.Messages[lastIdx]

		if lastMsg.Role == llms.ChatMessageTypeAI {
			hasToolCalls := false
			for _, part := range lastMsg.Parts {
				if _, ok := part.(llms.ToolCall); ok {
					hasToolCalls = true
					break
				}
			}

			if hasToolCalls {
				slog.Debug("removing unmatched tool call from context")
				s.Messages = s.Messages[:lastIdx]
				continue
			}
		}

		if lastMsg.Role == llms.ChatMessageTypeTool {
			if lastIdx == 0 {
				slog.Debug("removing tool result without prior messages")
				s.Messages = s.Messages[:lastIdx]
				continue
			}

			// Look backwards past other tool messages to find the AI message with tool calls
			var aiMsg *llms.MessageContent
			for i := lastIdx - 1; i >= 0; i-- {
				if s.Messages[i].Role == llms.ChatMessageTypeAI {
					aiMsg = &s.Messages[i]
					break
				}
				// Stop if we encounter a non-tool message that isn't AI
				if s.Messages[i].Role != llms.ChatMessageTypeTool {
					break
				}
			}

			if aiMsg == nil {
				slog.Debug("removing tool result without prior AI message")
				s.Messages = s.Messages[:lastIdx]
				continue
			}

			toolCallIDs := make(map[string]struct{})
			for _, part := range aiMsg.Parts {
				if tc, ok := part.(llms.ToolCall); ok && tc.ID != "" {
					toolCallIDs[tc.ID] = struct{}{}
				}
			}

			valid := len(toolCallIDs) > 0
			for _, part := range lastMsg.Parts {
				if resp, ok := part.(llms.ToolCallResponse); ok {
					if _, exists := toolCallIDs[resp.ToolCallID]; !exists || resp.ToolCallID == "" {
						valid = false
						break
					}
				}
			}

			if !valid {
				slog.Debug("removing dangling tool result from context")
				s.Messages = s.Messages[:lastIdx]
				continue
			}
		}

		return
	}
}

// prepareUserMessage builds the prompt with context and adds it to the message history
func (s *Session) prepareUserMessage(prompt string) {
	// Before adding a new user message, check for and remove any unmatched tool calls
	s.sanitizeMessages()

	s.drainPending()
	if special := s.drainSpecialMessages(); special != "" {
		prompt = special + "\n\n" + prompt
	}

	fullPrompt := s.buildPromptWithContext(prompt)
	s.Messages = append(s.Messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(fullPrompt)},
	})
	// Invalidate context cache since messages changed
	s.updateTokenCounts()
}

// isOAuthTokenExpiredError checks if an error is due to an expired OAuth token
func isOAuthTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	// Check for OAuth-related expiration errors
	return (strings.Contains(errStr, "oauth") || strings.Contains(errStr, "401")) &&
		strings.Contains(errStr, "expire")
}

// maxTransientRetries bounds retries after a stream breaks mid-response
// (connection reset, provider 5xx); maxEmptyResponseRetries bounds retries
// when the provider returns no choices at all, with a short backoff since
// an empty response is usually a transient rate-limit or cold-start blip.
const (
	maxTransientRetries     = 5
	maxEmptyResponseRetries = 3
	emptyResponseRetryDelay = time.Second
)

// isTransientBackendError reports whether err looks like a recoverable
// network/stream failure worth a bounded retry, versus a fatal request
// error (bad auth, malformed request) that retrying cannot fix.
func isTransientBackendError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"eof", "connection reset", "timeout", "temporarily unavailable", "429", "502", "503", "504"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (s *Session) generateLLMResponse(ctx context.Context, streamingFunc func(ctx context.Context, chunk []byte) error) (*llms.ContentChoice, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		choice, err := s.generateLLMResponseOnce(ctx, streamingFunc)
		if err == nil {
			return choice, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, errkind.Wrap(errkind.UserCancelled, "generation cancelled", ctx.Err())
		}
		if !isTransientBackendError(err) || attempt == maxTransientRetries {
			return nil, errkind.Wrap(errkind.BackendFatal, "model generation failed", err)
		}
		slog.Warn("retrying transient backend error", "attempt", attempt+1, "error", err)
	}
	return nil, errkind.Wrap(errkind.BackendFatal, "model generation failed", lastErr)
}

func (s *Session) generateLLMResponseOnce(ctx context.Context, streamingFunc func(ctx context.Context, chunk []byte) error) (*llms.ContentChoice, error) {
	// Build call options; try with explicit tool choice first, then without, then no tools.
	var callOptsWithChoice []llms.CallOption
	var callOptsNoChoice []llms.CallOption
	if len(s.toolDefs) > 0 {
		callOptsNoChoice = []llms.CallOption{llms.WithTools(s.toolDefs), llms.WithMaxTokens(64000)}
		callOptsWithChoice = append([]llms.CallOption{}, callOptsNoChoice...)
		callOptsWithChoice = append(callOptsWithChoice, llms.WithToolChoice("auto"))
	}

	// Add streaming option if requested
	if streamingFunc != nil {
		callOptsWithChoice = append(callOptsWithChoice, llms.WithStreamingFunc(streamingFunc))

		// Add reasoning callback for models that support it (#38)
		reasoningFunc := func(ctx context.Context, reasoningChunk, chunk []byte) error {
			// Check for cancellation
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// Send reasoning chunk to UI
			if len(reasoningChunk) > 0 && s.notify != nil {
				s.notify(streamReasoningChunkMsg(string(reasoningChunk)))
			}
			return nil
		}
		callOptsWithChoice = append(callOptsWithChoice, llms.WithStreamingReasoningFunc(reasoningFunc))
	}

	// Remove any unmatched tool calls from context before sending to API
	s.sanitizeMessages()

	// Build the outgoing message list fresh for this round: the persisted
	// conversation plus the current special-user-message snapshot (spec §4.1
	// step 1 / §9). request never mutates s.Messages.
	request := s.buildRequestMessages()

	// Attempt with explicit tool choice first
	resp, err := s.llm.GenerateContent(ctx, request, callOptsWithChoice...)
	if err != nil {
		// Check if this is an OAuth token expiration error
		if isOAuthTokenExpiredError(err) {
			slog.Info("OAuth token expired, attempting to refresh and retry", "error", err)
			cfg := &Config{LLM: *s.config}
			if !refreshOAuthToken(cfg) {
				return nil, fmt.Errorf("OAuth token expired and refresh failed (original error: %v)", err)
			}
			// Retry the request with the new token
			slog.Info("Retrying request with refreshed OAuth token")
			resp, err = s.llm.GenerateContent(ctx, request, callOptsWithChoice...)
			if err != nil {
				return nil, fmt.Errorf("request failed after OAuth token refresh: %w", err)
			}
		} else {
			// Not an OAuth error, return as-is
			return nil, err
		}
	}

	if len(resp.Choices) == 0 {
		return s.retryEmptyResponse(ctx, callOptsWithChoice)
	}
	return resp.Choices[0], nil
}

// retryEmptyResponse re-issues the request a bounded number of times with a
// short backoff when the provider returns zero choices, a failure mode seen
// transiently under rate limiting rather than from a malformed request.
func (s *Session) retryEmptyResponse(ctx context.Context, callOpts []llms.CallOption) (*llms.ContentChoice, error) {
	for attempt := 1; attempt <= maxEmptyResponseRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(emptyResponseRetryDelay):
		}
		resp, err := s.llm.GenerateContent(ctx, s.buildRequestMessages(), callOpts...)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) > 0 {
			return resp.Choices[0], nil
		}
		slog.Warn("empty response choices, retrying", "attempt", attempt)
	}
	return nil, fmt.Errorf("empty response choices after %d retries", maxEmptyResponseRetries)
}

// specialContextInsertionDepth is the N in spec §4.1 step 1: the rebuilt
// special-user-message layer is placed just before the N-th-from-end
// assistant message.
const specialContextInsertionDepth = 3

// currentSpecialContext renders the context layer for one round: the
// always-current TODO list and useful-info snapshots (spec §3's
// specialUserMessage, §9), plus anything queued via addSpecialMessage (e.g.
// text folded in by drainPending). It is never persisted into s.Messages —
// the TODO/useful-info render is pulled fresh on every call, and the queued
// text is drained (consumed) here rather than surviving into later rounds.
func (s *Session) currentSpecialContext() string {
	var parts []string
	if s.Todos != nil {
		if rendered := s.Todos.Render(); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	if s.UsefulInfo != nil {
		if rendered := s.UsefulInfo.Render(); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	if queued := s.drainSpecialMessages(); queued != "" {
		parts = append(parts, queued)
	}
	return strings.Join(parts, "\n\n")
}

// buildRequestMessages returns the message list to send to the model for
// this round. It never mutates s.Messages: the special-user-message layer
// is stripped and rebuilt every round (spec §4.1 step 1, §9's redesign
// note), inserted as a human message just before the
// specialContextInsertionDepth-th-from-end assistant message so it reads as
// recent context without being interleaved inside an in-progress tool-call
// round.
func (s *Session) buildRequestMessages() []llms.MessageContent {
	special := s.currentSpecialContext()
	if special == "" {
		return s.Messages
	}

	insertAt := len(s.Messages)
	assistantsSeen := 0
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llms.ChatMessageTypeAI {
			assistantsSeen++
			if assistantsSeen == specialContextInsertionDepth {
				insertAt = i
				break
			}
		}
	}

	specialMsg := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(special)},
	}

	out := make([]llms.MessageContent, 0, len(s.Messages)+1)
	out = append(out, s.Messages[:insertAt]...)
	out = append(out, specialMsg)
	out = append(out, s.Messages[insertAt:]...)
	return out
}

// appendMessages adds LLM response content and tool calls to the message history
func (s *Session) appendMessages(content string, toolCalls []llms.ToolCall) {
	// Build the assistant message parts
	var parts []llms.ContentPart

	// Add text content if present
	if strings.TrimSpace(content) != "" {
		parts = append(parts, llms.TextPart(content))
	}

	// Add tool calls if present
	for _, toolCall := range toolCalls {
		parts = append(parts, llms.ToolCall{
			ID:           toolCall.ID,
			Type:         toolCall.Type,
			FunctionCall: toolCall.FunctionCall,
		})
	}

	// Only add the assistant message if we have content or tool calls
	if len(parts) > 0 {
		s.Messages = append(s.Messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: parts,
		})
		// Invalidate context cache since messages changed
		s.updateTokenCounts()
	}
}

// executeToolCall executes a single tool call and returns the response content
func (s *Session) executeToolCall(ctx context.Context, tool lctools.Tool, tc llms.ToolCall, argsJSON string) llms.ToolCallResponse {
	var out string
	var callErr error

	if s.scheduler != nil {
		ch := s.scheduler.Schedule(ctx, tool, argsJSON)
		res := <-ch
		out, callErr = res.Output, res.Error
	} else {
		out, callErr = tool.Call(ctx, argsJSON)
	}

	if callErr != nil {
		return llms.ToolCallResponse{
			ToolCallID: tc.ID,
			Name:       tc.FunctionCall.Name,
			Content:    fmt.Sprintf("Error: %v", callErr),
		}
	}

	return llms.ToolCallResponse{
		ToolCallID: tc.ID,
		Name:       tc.FunctionCall.Name,
		Content:    out,
	}
}

// GetMessageSnapshot returns the current size of the message history for rollback purposes
func (s *Session) GetMessageSnapshot() int {
	return len(s.Messages)
}

// RollbackTo truncates the message history back to the provided snapshot index
func (s *Session) RollbackTo(snapshot int) {
	if snapshot < 1 {
		snapshot = 1 // always preserve the system prompt
	}
	if snapshot > len(s.Messages) {
		snapshot = len(s.Messages)
	}
	if snapshot < len(s.Messages) {
		s.Messages = s.Messages[:snapshot]
		// Invalidate context cache since messages changed
		s.updateTokenCounts()
	}

	// Reset tool loop detection state when rolling back
	s.lastToolCallKey = ""
	s.toolCallRepetitionCount = 0
}

// hasToolCallResponse checks if toolMessages already contains a response for the given tool call ID
// TODO: test to ensure we need this and the loops that use it
func hasToolCallResponse(toolMessages []llms.MessageContent, toolCallID string) bool {
	for _, msg := range toolMessages {
		if msg.Role != llms.ChatMessageTypeTool {
			continue
		}
		for _, part := range msg.Parts {
			if resp, ok := part.(llms.ToolCallResponse); ok && resp.ToolCallID == toolCallID {
				return true
			}
		}
	}
	return false
}

// processToolCalls handles executing tool calls and building response messages
func (s *Session) processToolCalls(ctx context.Context, toolCalls []llms.ToolCall) ([]llms.MessageContent, bool) {
	toolMessages := make([]llms.MessageContent, 0, len(toolCalls))

	for i, tc := range toolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		name := tc.FunctionCall.Name
		argsJSON := tc.FunctionCall.Arguments

		// Check for context cancellation before processing each tool call
		select {
		case <-ctx.Done():
			// Context was cancelled - provide "session aborted" responses for remaining tool calls
			slog.Debug("context cancelled during tool execution, aborting remaining tool calls", "completed", i, "total", len(toolCalls))

			// Add abort responses for all remaining tool calls (including current one)
			for _, remainingTC := range toolCalls {
				if remainingTC.FunctionCall == nil {
					continue
				}
				if !hasToolCallResponse(toolMessages, remainingTC.ID) {
					toolMessages = append(toolMessages, llms.MessageContent{
						Role: llms.ChatMessageTypeTool,
						Parts: []llms.ContentPart{llms.ToolCallResponse{
							ToolCallID: remainingTC.ID,
							Name:       remainingTC.FunctionCall.Name,
							Content:    "error: session aborted by user",
						}},
					})
				}
			}

			return toolMessages, true // shouldReturn = true
		default:
			// Continue with normal processing
		}

		// Check for tool call loops
		if s.checkToolCallLoop(name, argsJSON) {
			toolMessages = append(toolMessages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    fmt.Sprintf("error: tool call loop detected after %d attempts, please try a different approach", s.toolCallRepetitionCount),
				}},
			})
			return toolMessages, true // shouldReturn = true
		}

		tool, ok := s.toolCatalog[name]
		if !ok {
			// If the model requested an unknown tool, feed an error response back.
			toolMessages = append(toolMessages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    fmt.Sprintf("error: unknown tool %q", name),
				}},
			})
			continue
		}

		// Execute tool and add response
		response := s.executeToolCall(ctx, tool, tc, argsJSON)
		slog.Debug("Called a tool", "tool", name, "args", argsJSON)
		toolMessages = append(toolMessages, llms.MessageContent{
			Role:  llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{response},
		})
	}

	return toolMessages, false // shouldReturn = false
}

// Ask sends a user prompt through the native loop. It returns the final assistant text.
// It handles provider-native tool calls by executing them and feeding results back.
func (s *Session) Ask(ctx context.Context, prompt string) (string, error) {
	// Build prompt with context if available and add to messages
	s.prepareUserMessage(prompt)
	// Clear context after building the prompt
	defer s.ClearContext()

	// A simple loop: generate -> maybe tool calls -> tool responses -> generate.
	var finalText string
	var lastAssistant string
	var hadAnyToolCall bool
	var i int
	maxTurns := s.config.MaxTurns
	for i = 0; i < maxTurns; i++ {
		// Drain any input routed to this instance since the last round —
		// for a sub-agent Session this is how spec §4.8 step 6's
		// instance-targeted follow-up input is delivered before each model
		// call; prepareUserMessage's initial drain only covers the round
		// that was already in flight when the turn started.
		s.drainPending()

		choice, err := s.generateLLMResponse(ctx, nil)
		if err != nil {
			return "", err
		}

		// Check if response was truncated due to max tokens
		if choice.StopReason == "max_tokens" {
			return choice.Content + "\n\n[Response truncated due to length limit]", nil
		}

		// Build response with reasoning content if available
		responseText := choice.Content
		if choice.ReasoningContent != "" {
			responseText = "<thinking>\n" + choice.ReasoningContent + "\n</thinking>\n\n" + choice.Content
		}

		// Record assistant response in message history
		if strings.TrimSpace(responseText) != "" {
			finalText = responseText
		}
		s.appendMessages(responseText, choice.ToolCalls)

		// Handle tool calls, if any.
		if len(choice.ToolCalls) == 0 {
			// Give the model another turn to issue tool calls if it only planned.
			// Stop if it repeats the same assistant content.
			if hadAnyToolCall || strings.TrimSpace(choice.Content) == strings.TrimSpace(lastAssistant) {
				break
			}
			lastAssistant = choice.Content
			continue
		}
		hadAnyToolCall = true

		// Process tool calls and add responses
		toolMessages, shouldReturn := s.processToolCalls(ctx, choice.ToolCalls)
		if len(toolMessages) > 0 {
			s.Messages = append(s.Messages, toolMessages...)
			// Invalidate context cache since messages changed
			s.updateTokenCounts()
		}

		if shouldReturn {
			return finalText, nil
		}

		// Continue to next iteration to let the model incorporate tool results.
		if len(toolMessages) > 0 {
			continue
		}

		// No tool responses to send; break.
		break
	}
	if i < maxTurns {
		return finalText, nil
	}
	return fmt.Sprintf("%s\n\nEnded after %d interation", finalText, maxTurns), nil
}

// AskStream sends a user prompt through the native loop with streaming support.
// It launches the streaming process in a goroutine and returns immediately.
// Uses the notify callback to send streaming chunks as they arrive.
// Supports cancellation via the provided context.
func (s *Session) AskStream(ctx context.Context, prompt string) {
	// Launch streaming in a goroutine to avoid blocking the UI
	go func() {
		// Ensure cleanup on exit
		defer func() {
			s.ClearContext()
		}()

		// Build prompt with context if available and add to messages
		s.prepareUserMessage(prompt)

		// Notify UI that streaming has started
		if s.notify != nil {
			s.notify(streamStartMsg{})
		}

		// A simple loop: generate -> maybe tool calls -> tool responses -> generate.
		// Cap at a few iterations to avoid infinite loops.
		var i int
		maxTurns := s.config.MaxTurns
		for i = 0; i < maxTurns; i++ {
			s.resetStreamBuffer()

			// Check for cancellation
			select {
			case <-ctx.Done():
				// Streaming was cancelled. Per spec §4.1 cancellation (b)/(c):
				// the in-progress assistant is never appended, and the tail is
				// cleaned back to the last complete round so the log reads as
				// if the turn never happened.
				accumulatedText := s.getStreamBuffer(false)
				s.discontinueTurn(prompt)
				if s.notify != nil {
					s.notify(streamInterruptedMsg{partialContent: accumulatedText})
				}
				return
			default:
				// Continue with streaming
			}

			// Create streaming function that accumulates content and notifies UI
			streamingFunc := func(ctx context.Context, chunk []byte) error {
				// Check for cancellation in streaming callback
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				chunkStr := string(chunk)
				s.accumulatedContent.WriteString(chunkStr)
				if s.notify != nil {
					s.notify(streamChunkMsg(chunkStr))
				}
				return nil
			}

			choice, err := s.generateLLMResponse(ctx, streamingFunc)
			if err != nil {
				// Check if this was a cancellation
				if ctx.Err() != nil {
					accumulatedText := s.getStreamBuffer(false)
					s.discontinueTurn(prompt)
					if s.notify != nil {
						s.notify(streamInterruptedMsg{partialContent: accumulatedText})
					}
					return
				}

				// Regular error
				if s.notify != nil {
					s.notify(streamErrorMsg{err: err})
				}
				return
			}

			// Use accumulated content as the response
			responseContent := s.getStreamBuffer(false)

			// Check if response was truncated due to max tokens
			if choice.StopReason == "max_tokens" {
				if s.notify != nil {
					s.notify(streamMaxTokensReachedMsg{content: responseContent})
				}
				s.appendMessages(responseContent, choice.ToolCalls)
				break
			}

			// Add reasoning content if available (for models like deepseek-reasoner)
			if choice.ReasoningContent != "" && s.notify != nil {
				s.notify(streamChunkMsg("\n\n<thinking>\n" + choice.ReasoningContent + "\n</thinking>\n\n"))
			}

			// Add the assistant message with content and tool calls to message history
			s.appendMessages(responseContent, choice.ToolCalls)

			// Handle tool calls, if any.
			if len(choice.ToolCalls) == 0 {
				// No tool calls - streaming is complete
				break
			}

			// Process tool calls and add responses
			toolMessages, shouldReturn := s.processToolCalls(ctx, choice.ToolCalls)
			if len(toolMessages) > 0 {
				s.Messages = append(s.Messages, toolMessages...)
				// Invalidate context cache since messages changed
				s.updateTokenCounts()
			}

			if shouldReturn {
				break
			}

			// Fold in anything typed while this round was streaming before
			// asking the model to continue.
			if s.Pending != nil && s.Pending.Len() > 0 {
				if text, _, drained := s.Pending.DrainFor(""); len(drained) > 0 {
					s.Messages = append(s.Messages, llms.MessageContent{
						Role:  llms.ChatMessageTypeHuman,
						Parts: []llms.ContentPart{llms.TextPart(text)},
					})
					s.updateTokenCounts()
				}
			}

			// Continue to next iteration to let the model incorporate tool results.
			if len(toolMessages) > 0 {
				continue
			}

			// No tool responses to send; break.
			break
		}

		// Check if we exceeded max turns and send appropriate notification
		if s.notify != nil {
			if i >= maxTurns {
				s.notify(streamMaxTurnsExceededMsg{maxTurns: maxTurns})
			} else {
				s.notify(streamCompleteMsg{})
			}
		}
	}()
}

// sessBuildEnvBlock constructs a markdown summary of the OS, shell, and key paths.
func sessBuildEnvBlock(repoInfo RepoInfo) string {
	var env strings.Builder

	env.WriteString(fmt.Sprintf("- **OS:** %s\n", sandboxOS))
	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		env.WriteString(fmt.Sprintf("- **Working copy path** %s\n", cwd))
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "bash"
	}
	env.WriteString(fmt.Sprintf("- **Shell:** %s\n", shell))

	if repoInfo.Branch != "" {
		env.WriteString(fmt.Sprintf("- **Branch:** %s\n", repoInfo.Branch))
	}

	if repoInfo.IsWorktree && repoInfo.Branch != "dev" {
		env.WriteString(
			`\n\n**IMPORTANT:** Working on worktree so commits will be quashed.
Feel free to commit whenever you can summarize the changes in a meaningful commit message.`)
	}

	return env.String()
}

func normalizeBuildVersion(v string) string {
	if v == "" || v == "(devel)" {
		return ""
	}
	return strings.TrimPrefix(v, "v")
}

// readProjectContext reads the contents of AGENTS.md from the current working directory.
func readProjectContext() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	path := filepath.Join(wd, "AGENTS.md")
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// buildLLMTools returns the LLM tool/function definitions and a catalog by name for execution.
func buildLLMTools(cfg *Config, s *Session) ([]llms.Tool, map[string]lctools.Tool) {
	// Get tools with config
	tools := getAvailableTools(cfg, s)

	// Map our concrete tools by name for execution.
	execCatalog := map[string]lctools.Tool{}
	defs := make([]llms.Tool, 0, len(tools))

	for i := range tools {
		tool := tools[i]
		//nolint:typecheck // Tool interface is correctly defined in tools.go
		execCatalog[tool.Name()] = tool

		// Automatically generate the LLM tool definition from the tool's metadata
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.ParameterSchema(),
			},
		})
	}

	return defs, execCatalog
}

// GetSessionDuration returns the duration since the session started
func (s *Session) GetSessionDuration() time.Duration {
	return time.Since(s.startTime)
}

// updateTokenCounts recalculates and stores token counts for all context components
func (s *Session) updateTokenCounts() {
	s.systemPromptTokens = s.CountSystemPromptTokens()
	s.systemToolsTokens = s.CountSystemToolsTokens()
	s.memoryFilesTokens = s.CountMemoryFilesTokens()
	s.messagesTokens = s.CountMessagesTokens()
}

// GetContextUsagePercent returns the percentage of context used (0-100)
func (s *Session) GetContextUsagePercent() float64 {
	info := s.GetContextInfo()
	if info.TotalTokens <= 0 {
		return 0
	}
	return (float64(info.UsedTokens) / float64(info.TotalTokens)) * 100
}

// CompactHistory summarizes the conversation history to reduce context usage
// It uses the high-end model to create a comprehensive summary that includes:
// - All diffs/changes made to files
// - Key decisions and outcomes
// - Important technical details
// The summary replaces the conversation history while preserving the system message
func (s *Session) CompactHistory(ctx context.Context, compactPrompt string) (string, error) {
	if len(s.Messages) <= 2 {
		return "", fmt.Errorf("not enough conversation history to compact")
	}

	// Build the content to summarize
	var contentBuilder strings.Builder

	// Collect all diffs and file changes
	contentBuilder.WriteString("## File Changes and Diffs\n\n")
	fileChanges := s.extractFileChanges()
	if len(fileChanges) > 0 {
		for path, changes := range fileChanges {
			contentBuilder.WriteString(fmt.Sprintf("### %s\n\n", path))
			for _, change := range changes {
				contentBuilder.WriteString(change)
				contentBuilder.WriteString("\n\n")
			}
		}
	} else {
		contentBuilder.WriteString("No file changes recorded.\n\n")
	}

	// Collect conversation messages (excluding tool calls)
	contentBuilder.WriteString("## Conversation History\n\n")
	for i := 1; i < len(s.Messages); i++ {
		msg := s.Messages[i]

		switch msg.Role {
		case llms.ChatMessageTypeHuman:
			contentBuilder.WriteString("**User:**\n")
			for _, part := range msg.Parts {
				if textPart, ok := part.(llms.TextContent); ok {
					contentBuilder.WriteString(textPart.Text)
					contentBuilder.WriteString("\n\n")
				}
			}

		case llms.ChatMessageTypeAI:
			contentBuilder.WriteString("**Assistant:**\n")
			// Only include text content, skip tool calls
			for _, part := range msg.Parts {
				if textPart, ok := part.(llms.TextContent); ok {
					contentBuilder.WriteString(textPart.Text)
					contentBuilder.WriteString("\n\n")
				}
			}
		}
	}

	// Build the compaction request
	fullPrompt := fmt.Sprintf("%s\n\n---\n\n%s", compactPrompt, contentBuilder.String())

	// Save the current messages
	originalMessages := s.Messages
	systemMessage := s.Messages[0]

	// Create a temporary message history with just the system message and compaction request
	s.Messages = []llms.MessageContent{
		systemMessage,
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fullPrompt)},
		},
	}

	// Generate the summary using the LLM
	choice, err := s.generateLLMResponse(ctx, nil)
	if err != nil {
		// Restore original messages on error
		s.Messages = originalMessages
		s.updateTokenCounts()
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	summary := choice.Content
	if choice.ReasoningContent != "" {
		summary = choice.ReasoningContent + "\n\n" + choice.Content
	}

	// Replace the conversation history with the summary
	s.Messages = []llms.MessageContent{
		systemMessage,
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart("Previous conversation summary:\n\n" + summary)},
		},
		{
			Role:  llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{llms.TextPart("I understand. I have the context from the previous conversation and am ready to continue.")},
		},
	}

	// Reset tool call tracking
	s.lastToolCallKey = ""
	s.toolCallRepetitionCount = 0

	// Invalidate context cache since messages changed
	s.updateTokenCounts()

	return summary, nil
}

// extractFileChanges extracts all file changes from tool call responses
func (s *Session) extractFileChanges() map[string][]string {
	changes := make(map[string][]string)

	for _, msg := range s.Messages {
		if msg.Role != llms.ChatMessageTypeTool {
			continue
		}

		for _, part := range msg.Parts {
			if toolResp, ok := part.(llms.ToolCallResponse); ok {
				// Track filesystem-create and filesystem-edit operations
				if toolResp.Name == "filesystem-create" || toolResp.Name == "filesystem-edit" {
					// No file path is parsed: a successful response is recorded whole
					// under the single "file-changes" key
					content := toolResp.Content
					if strings.Contains(content, "Successfully") || strings.Contains(content, "wrote") {
						// Simple heuristic for a successful write
						lines := strings.Split(content, "\n")
						for _, line := range lines {
							if strings.Contains(line, "Successfully") || strings.Contains(line, "wrote") {
								changes["file-changes"] = append(changes["file-changes"], content)
								break
							}
						}
					}
				}
			}
		}
	}

	return changes
}

type SessionIndex struct {
	Sessions []Session `json:"sessions"`
}

func generateSessionID() string {
	timestamp := time.Now().Format("2006-01-02-150405")

	randomBytes := make([]byte, 4)
	crand.Read(randomBytes)
	suffix := hex.EncodeToString(randomBytes)

	return fmt.Sprintf("%s-%s", timestamp, suffix)
}

func branchSlugOrDefault(branch string) string {
	slug := sanitizeSegment(branch)
	// TODO: pick a better default branch for cases when working outside repo,
	//       to avoid a collision make it illegal in git.
	if slug == "" {
		return "main"
	}

	return slug
}

func findProjectRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == "/" || parent == dir {
			return start
		}
		dir = parent
	}
}

func sanitizeSegment(value string) string {
	value = strings.ToLower(value)
	var b strings.Builder
	prevHyphen := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if !prevHyphen {
			b.WriteRune('-')
			prevHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func gitRemoteOriginURL(workingDir string) (string, error) {
	cmd := exec.Command("git", "-C", workingDir, "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func parseGitRemote(remote string) (owner, repo string) {
	remote = strings.TrimSpace(remote)
	remote = strings.TrimSuffix(remote, ".git")
	if remote == "" {
		return "", ""
	}

	if strings.Contains(remote, "://") {
		if u, err := url.Parse(remote); err == nil {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(segments) >= 2 {
				owner = segments[len(segments)-2]
				repo = segments[len(segments)-1]
			}
			return owner, repo
		}
	}

	if strings.Contains(remote, ":") {
		parts := strings.SplitN(remote, ":", 2)
		if len(parts) == 2 {
			path := strings.Trim(parts[1], "/")
			segments := strings.Split(path, "/")
			if len(segments) >= 2 {
				owner = segments[len(segments)-2]
				repo = segments[len(segments)-1]
			}
		}
	}

	return owner, repo
}
