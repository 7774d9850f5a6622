package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// AskUserFunc routes an askuser-ask_question call to whatever UI is
// presenting the conversation. The main session wires this to the TUI via
// notify plus a response channel (mirroring CoreToolScheduler.confirm); a
// sub-agent's Session instead leaves its own askUser nil, since its
// askuser-* calls are intercepted one level up by subagent.Runtime and
// rerouted to the parent's question UI per spec §4.8 step 7.
type AskUserFunc func(ctx context.Context, question string, options []string) (string, error)

// AskUserQuestionMsg is the notification the TUI observes to render a
// question prompt with optional multiple-choice answers.
type AskUserQuestionMsg struct {
	Question string
	Options  []string
	Response chan string
}

// notifyAskUser is the default AskUserFunc: it posts an AskUserQuestionMsg
// over notify and blocks for the user's answer on a dedicated channel.
func notifyAskUser(notify NotifyFunc) AskUserFunc {
	return func(ctx context.Context, question string, options []string) (string, error) {
		if notify == nil {
			return "", fmt.Errorf("no question UI configured")
		}
		resp := make(chan string, 1)
		notify(AskUserQuestionMsg{Question: question, Options: options, Response: resp})
		select {
		case answer := <-resp:
			return answer, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// AskUserTool backs askuser-ask_question. It holds the owning Session
// rather than a copied AskUserFunc so a sub-agent's Session (whose askUser
// field is nilled out after construction, per spec §4.8 step 7) always sees
// the current routing rather than the one in effect at tool-registration
// time.
type AskUserTool struct{ session *Session }

type askUserInput struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

func (t AskUserTool) Name() string { return "askuser-ask_question" }

func (t AskUserTool) Description() string {
	return "Asks the user a clarifying question, optionally with a fixed set of options. The input should be a JSON object with a 'question' field and optionally an 'options' array."
}

func (t AskUserTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"question"},
	}
}

func (t AskUserTool) Call(ctx context.Context, input string) (string, error) {
	var params askUserInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if t.session == nil || t.session.askUser == nil {
		return "", fmt.Errorf("no question UI configured")
	}
	answer, err := t.session.askUser(ctx, params.Question, params.Options)
	if err != nil {
		return "", err
	}
	out, _ := json.Marshal(map[string]string{"answer": answer, "selected": answer})
	return string(out), nil
}

func (t AskUserTool) Format(input, result string, err error) string {
	return "Ask User\n" + treeFinalPrefix + result
}
