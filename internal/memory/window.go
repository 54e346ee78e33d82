package memory

import (
	"sync"

	"github.com/seelenmaschine/seele/internal/llm"
)

// Message is one turn kept in the context window. Timestamps are carried
// per message so summaries always get real time spans.
type Message struct {
	Role      string
	Text      string
	Timestamp int64
}

// SummaryRef points at a stored summary that is already rendered into the
// prompt, so retrieval can skip it.
type SummaryRef struct {
	ID   int64
	Text string
}

// Window is the LLM's working set: the unsummarized tail of the session
// plus the most recent summaries.
type Window struct {
	mu        sync.Mutex
	messages  []Message
	summaries []SummaryRef
	maxRecent int
}

// NewWindow creates a window keeping at most maxRecent summaries.
func NewWindow(maxRecent int) *Window {
	return &Window{maxRecent: maxRecent}
}

// AddMessage appends one turn.
func (w *Window) AddMessage(role, text string, ts int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, Message{Role: role, Text: text, Timestamp: ts})
}

// Messages returns a copy of the current turns in order.
func (w *Window) Messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.messages...)
}

// MessageCount reports how many turns are in the window.
func (w *Window) MessageCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// MessagesForSummary returns a copy of the prefix that summarization
// should cover, leaving the last keep turns untouched. Nil when the
// window is not longer than keep.
func (w *Window) MessagesForSummary(keep int) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) <= keep {
		return nil
	}
	return append([]Message(nil), w.messages[:len(w.messages)-keep]...)
}

// RemoveEarliest drops the first n turns.
func (w *Window) RemoveEarliest(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n >= len(w.messages) {
		w.messages = nil
		return
	}
	w.messages = append([]Message(nil), w.messages[n:]...)
}

// AddSummary appends a summary reference, trimming the oldest beyond
// capacity.
func (w *Window) AddSummary(text string, id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summaries = append(w.summaries, SummaryRef{ID: id, Text: text})
	if w.maxRecent > 0 && len(w.summaries) > w.maxRecent {
		w.summaries = append([]SummaryRef(nil), w.summaries[len(w.summaries)-w.maxRecent:]...)
	}
}

// RecentSummaryIDs returns the ids already present in the prompt, oldest
// first. Retrieval excludes them.
func (w *Window) RecentSummaryIDs() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int64, len(w.summaries))
	for i, s := range w.summaries {
		ids[i] = s.ID
	}
	return ids
}

// RecentSummaryTexts returns the summary texts, oldest first.
func (w *Window) RecentSummaryTexts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	texts := make([]string, len(w.summaries))
	for i, s := range w.summaries {
		texts[i] = s.Text
	}
	return texts
}

// AsChatMessages renders the window turns for the LLM client.
func (w *Window) AsChatMessages() []llm.Message {
	return toLLM(w.Messages())
}

// LastAssistantText returns the most recent assistant turn, or "".
func (w *Window) LastAssistantText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.messages) - 1; i >= 0; i-- {
		if w.messages[i].Role == "assistant" {
			return w.messages[i].Text
		}
	}
	return ""
}

// Clear empties both compartments.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
	w.summaries = nil
}

func toLLM(msgs []Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Text}
	}
	return out
}
