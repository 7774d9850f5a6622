package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/afittestide/asimi/subagent"
)

// SubAgentExecuteTool backs subagent-execute, the single tool call through
// which the parent conversation drives a nested, restricted conversation
// loop to completion (spec §4.8).
type SubAgentExecuteTool struct{ parent *Session }

type subAgentExecuteInput struct {
	AgentID    string `json:"agent_id"`
	Prompt     string `json:"prompt"`
	InstanceID string `json:"instance_id,omitempty"`
}

func (t SubAgentExecuteTool) Name() string { return "subagent-execute" }

func (t SubAgentExecuteTool) Description() string {
	return "Runs a named sub-agent (a nested conversation with a restricted tool set and its own system prompt) to completion on the given prompt, and returns its final textual result. The input should be a JSON object with 'agent_id' and 'prompt', and optionally an 'instance_id' to route follow-up input to this specific invocation."
}

func (t SubAgentExecuteTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_id":    map[string]any{"type": "string", "description": "Sub-agent id, e.g. 'explore' or 'general'"},
			"prompt":      map[string]any{"type": "string"},
			"instance_id": map[string]any{"type": "string"},
		},
		"required": []string{"agent_id", "prompt"},
	}
}

func (t SubAgentExecuteTool) Call(ctx context.Context, input string) (string, error) {
	var params subAgentExecuteInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if t.parent == nil || t.parent.subagentRuntime == nil {
		return "", fmt.Errorf("sub-agents are not configured")
	}

	var userQuestion subagent.UserQuestionFunc
	if t.parent.askUser != nil {
		userQuestion = func(ctx context.Context, question string) (string, error) {
			return t.parent.askUser(ctx, question, nil)
		}
	}

	var onMessage func(any)
	if t.parent.notify != nil {
		onMessage = t.parent.notify
	}

	result, err := t.parent.subagentRuntime.Execute(
		ctx,
		params.AgentID,
		params.Prompt,
		params.InstanceID,
		readProjectContext(),
		onMessage,
		userQuestion,
		nil, // onSubAgentComplete hook: no forced-continuation validator configured by default
	)
	if err != nil {
		return "", err
	}
	out, _ := json.Marshal(map[string]any{
		"success": result.Success,
		"result":  result.Text,
	})
	return string(out), nil
}

func (t SubAgentExecuteTool) Format(input, result string, err error) string {
	if err != nil {
		return fmt.Sprintf("Sub-Agent\nError: %v", err)
	}
	return "Sub-Agent\n" + treeFinalPrefix + result
}
