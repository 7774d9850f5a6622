// Package pending implements the single-writer (UI) / single-reader
// (ConversationEngine) queue of user input submitted while a turn is still
// streaming, grounded on the channel-based approval-request idiom the
// teacher uses for host-command confirmation (tools.go's
// hostCommandApprovalChan).
package pending

import "strings"

// Message is one queued user submission. TargetInstanceID routes it to a
// specific running sub-agent instead of the main conversation when set.
type Message struct {
	Text             string
	Images           []string
	TargetInstanceID string
}

// Queue buffers messages between rounds. It is not goroutine-safe by
// design: the engine owns the read side and the UI goroutine owns the write
// side, and both only ever touch it between well-defined suspension points,
// matching spec §5's single-threaded cooperative model.
type Queue struct {
	items []Message
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a message. Called by the UI while the engine is streaming.
func (q *Queue) Enqueue(text string, images []string, targetInstanceID string) {
	q.items = append(q.items, Message{Text: text, Images: images, TargetInstanceID: targetInstanceID})
}

// Len reports how many messages are queued.
func (q *Queue) Len() int {
	return len(q.items)
}

// DrainFor removes and returns every queued message addressed to
// instanceID (empty string selects main-conversation messages), concatenating
// their text with a blank line between each per spec §4.10.
func (q *Queue) DrainFor(instanceID string) (text string, images []string, drained []Message) {
	var kept []Message
	var texts []string
	for _, m := range q.items {
		if m.TargetInstanceID == instanceID {
			drained = append(drained, m)
			texts = append(texts, m.Text)
			images = append(images, m.Images...)
		} else {
			kept = append(kept, m)
		}
	}
	q.items = kept
	return strings.Join(texts, "\n\n"), images, drained
}

// RestoreHead pushes a previously drained (or never-drained) message back to
// the front of the queue. Used on ESC-cancel per spec §4.1's cancellation
// semantics: pending messages are restored, not discarded.
func (q *Queue) RestoreHead(m Message) {
	q.items = append([]Message{m}, q.items...)
}

// PopHead removes and returns the first queued message, used by the
// ESC-cancel path to return the in-flight user text to the input field.
func (q *Queue) PopHead() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}
