package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// UsefulInfoEntry is one fact the model chose to remember across rounds of
// the current session (e.g. "the build command is `make test`"), surfaced
// via useful-info-* and folded into the context layer each round, per spec
// §9's "useful-info" special user message.
type UsefulInfoEntry struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// UsefulInfoList is the in-process, per-session backing store for
// useful-info-add/list/delete; never persisted to the session log.
type UsefulInfoList struct {
	mu     sync.Mutex
	items  []UsefulInfoEntry
	nextID int
}

func NewUsefulInfoList() *UsefulInfoList {
	return &UsefulInfoList{nextID: 1}
}

func (l *UsefulInfoList) Add(text string) UsefulInfoEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := UsefulInfoEntry{ID: l.nextID, Text: text}
	l.nextID++
	l.items = append(l.items, entry)
	return entry
}

func (l *UsefulInfoList) Delete(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no useful-info entry with id %d", id)
}

func (l *UsefulInfoList) Snapshot() []UsefulInfoEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UsefulInfoEntry, len(l.items))
	copy(out, l.items)
	return out
}

// Render formats the list as the text injected into the context layer; ""
// when empty.
func (l *UsefulInfoList) Render() string {
	items := l.Snapshot()
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "[%d] %s\n", it.ID, it.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// UsefulInfoAddTool backs useful-info-add.
type UsefulInfoAddTool struct{ list *UsefulInfoList }

type usefulInfoAddInput struct {
	Text string `json:"text"`
}

func (t UsefulInfoAddTool) Name() string { return "useful-info-add" }
func (t UsefulInfoAddTool) Description() string {
	return "Records a durable fact (e.g. a build command, a convention) to be reminded of on every subsequent round. The input should be a JSON object with a 'text' field."
}
func (t UsefulInfoAddTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}
}
func (t UsefulInfoAddTool) Call(ctx context.Context, input string) (string, error) {
	var params usefulInfoAddInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Text) == "" {
		return "", fmt.Errorf("text must not be empty")
	}
	entry := t.list.Add(params.Text)
	out, _ := json.Marshal(entry)
	return string(out), nil
}
func (t UsefulInfoAddTool) Format(input, result string, err error) string {
	return "Add Useful Info\n" + treeFinalPrefix + result
}

// UsefulInfoListTool backs useful-info-list.
type UsefulInfoListTool struct{ list *UsefulInfoList }

func (t UsefulInfoListTool) Name() string        { return "useful-info-list" }
func (t UsefulInfoListTool) Description() string { return "Lists recorded useful-info entries as JSON." }
func (t UsefulInfoListTool) ParameterSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t UsefulInfoListTool) Call(ctx context.Context, input string) (string, error) {
	out, _ := json.Marshal(t.list.Snapshot())
	return string(out), nil
}
func (t UsefulInfoListTool) Format(input, result string, err error) string {
	return "List Useful Info\n" + treeFinalPrefix + result
}

// UsefulInfoDeleteTool backs useful-info-delete.
type UsefulInfoDeleteTool struct{ list *UsefulInfoList }

func (t UsefulInfoDeleteTool) Name() string { return "useful-info-delete" }
func (t UsefulInfoDeleteTool) Description() string {
	return "Deletes a useful-info entry by id. The input should be a JSON object with an 'id' field."
}
func (t UsefulInfoDeleteTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "integer"}},
		"required":   []string{"id"},
	}
}
func (t UsefulInfoDeleteTool) Call(ctx context.Context, input string) (string, error) {
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
func (t UsefulInfoDeleteTool) Format(input, result string, err error) string {
	return "Delete Useful Info\n" + treeFinalPrefix + result
}
