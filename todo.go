package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// TodoItem is one entry of the session's TODO list, surfaced to the model
// via todo-get/update/add/delete and injected into the outgoing message list
// as a special (non-persisted) context-layer snapshot, per spec §9.
type TodoItem struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending | in_progress | completed
}

// TodoList is the in-process backing store for the todo-* tool family. It is
// owned by the Session (one list per session) and never persisted to the
// session log directly; only its rendered snapshot reaches the model, via
// the context layer.
type TodoList struct {
	mu     sync.Mutex
	items  []TodoItem
	nextID int
}

func NewTodoList() *TodoList {
	return &TodoList{nextID: 1}
}

func (l *TodoList) Add(text string) TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	item := TodoItem{ID: l.nextID, Text: text, Status: "pending"}
	l.nextID++
	l.items = append(l.items, item)
	return item
}

func (l *TodoList) Update(id int, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("no todo with id %d", id)
}

func (l *TodoList) Delete(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no todo with id %d", id)
}

func (l *TodoList) Snapshot() []TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TodoItem, len(l.items))
	copy(out, l.items)
	return out
}

// Render formats the list as the compact text injected into the context
// layer each round; "" when empty so an empty list adds nothing to the
// outgoing prompt.
func (l *TodoList) Render() string {
	items := l.Snapshot()
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", it.ID, it.Status, it.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// TodoGetTool backs todo-get.
type TodoGetTool struct{ list *TodoList }

func (t TodoGetTool) Name() string        { return "todo-get" }
func (t TodoGetTool) Description() string { return "Returns the current TODO list as JSON." }
func (t TodoGetTool) ParameterSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t TodoGetTool) Call(ctx context.Context, input string) (string, error) {
	out, _ := json.Marshal(t.list.Snapshot())
	return string(out), nil
}
func (t TodoGetTool) Format(input, result string, err error) string {
	return "Get TODOs\n" + treeFinalPrefix + result
}

// TodoAddTool backs todo-add.
type TodoAddTool struct{ list *TodoList }

type todoAddInput struct {
	Text string `json:"text"`
}

func (t TodoAddTool) Name() string { return "todo-add" }
func (t TodoAddTool) Description() string {
	return "Adds a new item to the TODO list. The input should be a JSON object with a 'text' field."
}
func (t TodoAddTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}
}
func (t TodoAddTool) Call(ctx context.Context, input string) (string, error) {
	var params todoAddInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Text) == "" {
		return "", fmt.Errorf("text must not be empty")
	}
	item := t.list.Add(params.Text)
	out, _ := json.Marshal(item)
	return string(out), nil
}
func (t TodoAddTool) Format(input, result string, err error) string {
	return "Add TODO\n" + treeFinalPrefix + result
}

// TodoUpdateTool backs todo-update.
type TodoUpdateTool struct{ list *TodoList }

func (t TodoUpdateTool) Name() string { return "todo-update" }
func (t TodoUpdateTool) Description() string {
	return "Updates a TODO's status. The input should be a JSON object with an 'id' and a 'status' of pending, in_progress, or completed."
}
func (t TodoUpdateTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":     map[string]any{"type": "integer"},
			"status": map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
		},
		"required": []string{"id", "status"},
	}
}
func (t TodoUpdateTool) Call(ctx context.Context, input string) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	id, err := coerceInt(raw["id"])
	if err != nil {
		return "", err
	}
	status, _ := raw["status"].(string)
	if status == "" {
		return "", fmt.Errorf("status must not be empty")
	}
	if err := t.list.Update(id, status); err != nil {
		return "", err
	}
	return "ok", nil
}
func (t TodoUpdateTool) Format(input, result string, err error) string {
	return "Update TODO\n" + treeFinalPrefix + result
}

// TodoDeleteTool backs todo-delete.
type TodoDeleteTool struct{ list *TodoList }

func (t TodoDeleteTool) Name() string { return "todo-delete" }
func (t TodoDeleteTool) Description() string {
	return "Deletes a TODO by id. The input should be a JSON object with an 'id' field."
}
func (t TodoDeleteTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "integer"}},
		"required":   []string{"id"},
	}
}
func (t TodoDeleteTool) Call(ctx context.Context, input string) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	id, err := coerceInt(raw["id"])
	if err != nil {
		return "", err
	}
	if err := t.list.Delete(id); err != nil {
		return "", err
	}
	return "ok", nil
}
func (t TodoDeleteTool) Format(input, result string, err error) string {
	return "Delete TODO\n" + treeFinalPrefix + result
}

// coerceInt accepts either a JSON number or a numeric string for an id
// field, matching the tolerant-input texture ReadFileTool already uses.
func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("missing or invalid id")
	}
}
