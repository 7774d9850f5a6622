// Package subagent implements the restricted, unpersisted nested
// conversation loop spec §4.8 describes for subagent-* tool invocations.
// It cannot import the root package's Session directly (a main package
// cannot be imported), so it depends on a narrow Engine interface that the
// root package's ConversationEngine satisfies, grounded on the same
// restricted-tool nested-loop shape observed in the pack's explore-agent
// pattern during the survey.
package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config is one entry of the sub-agent seed registry (SPEC_FULL.md §10's
// SubAgents config section).
type Config struct {
	ID            string
	Role          string
	AllowedTools  []string
	Model         string
	SystemPrompt  string
	ConfigProfile string
}

// allowsTool implements the exact-match / prefix-with-hyphen semantics step
// 1 names: an allow-list entry of "filesystem" matches any
// "filesystem-*" tool name as well as the bare name itself.
func (c Config) allowsTool(name string) bool {
	for _, allowed := range c.AllowedTools {
		if allowed == name {
			return true
		}
		if strings.HasPrefix(name, allowed+"-") {
			return true
		}
	}
	return false
}

// Registry looks up sub-agent configurations by id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Config
}

// NewRegistry seeds a Registry from a static config list.
func NewRegistry(configs []Config) *Registry {
	r := &Registry{agents: make(map[string]Config, len(configs))}
	for _, c := range configs {
		r.agents[c.ID] = c
	}
	return r
}

// Get returns the named agent's config, or false if unknown.
func (r *Registry) Get(id string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.agents[id]
	return c, ok
}

// AllowedToolFilter returns a predicate closing over agentID's allow-list,
// for the caller to apply when building the restricted ToolRegistry view.
func (r *Registry) AllowedToolFilter(agentID string) (func(toolName string) bool, error) {
	cfg, ok := r.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("unknown sub-agent %q", agentID)
	}
	return cfg.allowsTool, nil
}

// Usage mirrors the parent conversation's token accounting, carried back so
// the orchestrator can fold sub-agent spend into the session total.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the contract's return value: execute(...) -> {success, result,
// usage, injectedUserMessages?}.
type Result struct {
	Success              bool
	Text                 string
	Usage                Usage
	InjectedUserMessages []string
}

// Engine is the narrow surface the restricted nested conversation loop
// needs; the root package's ConversationEngine (Session) satisfies it.
// Ask runs one full round-loop turn to completion, non-streaming, against
// an internal, unpersisted message buffer.
type Engine interface {
	Ask(ctx context.Context, prompt string) (string, error)
	EnqueuePending(text string, images []string, targetInstanceID string)
}

// UserQuestionFunc routes an askuser-* call made inside a sub-agent back to
// the parent session's question UI, per step 7.
type UserQuestionFunc func(ctx context.Context, question string) (string, error)

// EngineFactory builds a restricted Engine scoped to allowedTool for one
// sub-agent invocation. askUser is the parent's own question-routing
// function, already adapted from UserQuestionFunc to whatever shape the
// nested Engine's own askuser-* tool expects, so the nested engine's
// question tool intercepts to the parent's UI instead of showing its own
// (step 7) — the root package supplies this (constructing a second,
// unpersisted Session wired to a filtered tool catalog and the adapted
// callback) since subagent cannot import Session directly.
// instanceID identifies this particular invocation for PendingMessageQueue
// routing (step 6): the nested Engine drains messages addressed to it by
// this id from the shared queue each round.
type EngineFactory func(ctx context.Context, cfg Config, allowedTool func(string) bool, instanceID string, askUser func(ctx context.Context, question string, options []string) (string, error)) (Engine, error)

// CompleteHook inspects a finished round's result and may force another
// iteration (e.g. on validation failure) by returning true.
type CompleteHook func(Result) (retryWithPrompt string, again bool)

const (
	maxEmptyResponseRetries = 3
	emptyResponseRetryDelay = time.Second
)

// Runtime drives sub-agent invocations. Tracker holds in-flight instance IDs
// so a sub-agent cannot recursively invoke itself concurrently within one
// parent turn (per spec §4.8's final paragraph) unless its config permits it.
type Runtime struct {
	Registry     *Registry
	NewEngine    EngineFactory
	mu           sync.Mutex
	runningByID  map[string]bool
	allowRecurse map[string]bool
}

// NewRuntime constructs a Runtime. allowRecurse names agent IDs permitted to
// invoke themselves recursively.
func NewRuntime(reg *Registry, factory EngineFactory, allowRecurse map[string]bool) *Runtime {
	if allowRecurse == nil {
		allowRecurse = map[string]bool{}
	}
	return &Runtime{
		Registry:     reg,
		NewEngine:    factory,
		runningByID:  make(map[string]bool),
		allowRecurse: allowRecurse,
	}
}

func (r *Runtime) tryEnter(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runningByID[agentID] && !r.allowRecurse[agentID] {
		return false
	}
	r.runningByID[agentID] = true
	return true
}

func (r *Runtime) leave(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runningByID, agentID)
}

// composeSeedPrompt builds the agent's seed prompt per step 3: role,
// model-specific instructions, project context, task-completion framing,
// then the caller's own prompt.
func composeSeedPrompt(cfg Config, agentsMD, callerPrompt string) string {
	var b strings.Builder
	if cfg.Role != "" {
		b.WriteString(cfg.Role)
		b.WriteString("\n\n")
	}
	if cfg.SystemPrompt != "" {
		b.WriteString(cfg.SystemPrompt)
		b.WriteString("\n\n")
	}
	if agentsMD != "" {
		b.WriteString("--- Project specific directions from: AGENTS.md ---\n")
		b.WriteString(agentsMD)
		b.WriteString("\n--- End of Directions from: AGENTS.md ---\n\n")
	}
	b.WriteString("Report back a single final result when the task is complete; do not ask the user clarifying questions unless absolutely necessary.\n\n")
	b.WriteString(callerPrompt)
	return b.String()
}

// Execute runs one sub-agent invocation to completion per spec §4.8.
func (r *Runtime) Execute(
	ctx context.Context,
	agentID string,
	prompt string,
	instanceID string,
	agentsMD string,
	onMessage func(any),
	userQuestion UserQuestionFunc,
	onComplete CompleteHook,
) (Result, error) {
	cfg, ok := r.Registry.Get(agentID)
	if !ok {
		return Result{}, fmt.Errorf("unknown sub-agent %q", agentID)
	}

	if !r.tryEnter(agentID) {
		return Result{}, fmt.Errorf("sub-agent %q is already running and does not permit recursive invocation", agentID)
	}
	defer r.leave(agentID)

	var adaptedAskUser func(context.Context, string, []string) (string, error)
	if userQuestion != nil {
		adaptedAskUser = func(ctx context.Context, question string, _ []string) (string, error) {
			return userQuestion(ctx, question)
		}
	}

	engine, err := r.NewEngine(ctx, cfg, cfg.allowsTool, instanceID, adaptedAskUser)
	if err != nil {
		return Result{}, fmt.Errorf("starting sub-agent %q: %w", agentID, err)
	}

	seed := composeSeedPrompt(cfg, agentsMD, prompt)

	var injected []string
	text, err := r.askWithRetry(ctx, engine, seed)
	if err != nil {
		return Result{Success: false, Text: err.Error()}, nil
	}

	result := Result{Success: true, Text: text, InjectedUserMessages: injected}

	for onComplete != nil {
		nextPrompt, again := onComplete(result)
		if !again {
			break
		}
		text, err := r.askWithRetry(ctx, engine, nextPrompt)
		if err != nil {
			result = Result{Success: false, Text: err.Error()}
			break
		}
		result = Result{Success: true, Text: text, InjectedUserMessages: injected}
	}

	if onMessage != nil {
		onMessage(SubAgentResultMsg{AgentID: agentID, InstanceID: instanceID, Result: result})
	}
	return result, nil
}

// askWithRetry applies the same empty-response retry policy as the parent
// conversation loop (step 8): the first attempt plus up to
// maxEmptyResponseRetries (3) retries, 1s apart.
func (r *Runtime) askWithRetry(ctx context.Context, engine Engine, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxEmptyResponseRetries; attempt++ {
		text, err := engine.Ask(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < maxEmptyResponseRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(emptyResponseRetryDelay):
			}
		}
	}
	return "", lastErr
}

// SubAgentResultMsg is the notification emitted on completion (step 9's
// "subagent_result" event), delivered through the same notify channel the
// parent engine uses for streaming events.
type SubAgentResultMsg struct {
	AgentID    string
	InstanceID string
	Result     Result
}
