// Package bot runs the conversation pipeline shared by every transport:
// commit the incoming message, recall related memories, complete, and
// commit the reply. One driver serializes all message processing, so user
// messages and scheduled tasks are totally ordered.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/llm"
	"github.com/seelenmaschine/seele/internal/memory"
	"github.com/seelenmaschine/seele/internal/store"
)

// Completer produces chat replies. Satisfied by *llm.Client.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// SearchToggle guards the memory search tool: enabled for the completion,
// disabled while the reply is committed so summarization prompts cannot
// recurse into it. Satisfied by *tools.MemorySearchTool.
type SearchToggle interface {
	Enable()
	Disable()
}

// Driver owns one profile's conversation loop.
type Driver struct {
	mu     sync.Mutex
	mgr    *memory.Manager
	chat   Completer
	search SearchToggle // nil when the tool is not registered
	clk    *clock.Clock
}

// New wires the driver. search may be nil.
func New(mgr *memory.Manager, chat Completer, search SearchToggle, clk *clock.Clock) *Driver {
	return &Driver{mgr: mgr, chat: chat, search: search, clk: clk}
}

// Restore loads or creates the active session.
func (d *Driver) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.RestoreSession(ctx)
}

// SessionID returns the active session id.
func (d *Driver) SessionID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.SessionID()
}

// History returns a copy of the in-window conversation.
func (d *Driver) History() []llm.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.ContextMessages()
}

// ProcessMessage runs one user exchange and returns the reply. The user
// message is committed before the completion, so a failed completion still
// leaves it in history.
func (d *Driver) ProcessMessage(ctx context.Context, text string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	vec, err := d.mgr.AddUserMessage(ctx, text)
	if err != nil {
		return "", fmt.Errorf("record user message: %w", err)
	}

	sums, convs, err := d.mgr.Retrieve(ctx, text, vec)
	if err != nil {
		return "", fmt.Errorf("retrieve memories: %w", err)
	}

	reply, err := d.complete(ctx, llm.ChatRequest{
		Context:                d.mgr.ContextMessages(),
		RetrievedSummaries:     sums,
		RetrievedConversations: convs,
		RecentSummaries:        d.mgr.RecentSummaries(),
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	if _, err := d.mgr.AddAssistantMessage(ctx, reply); err != nil {
		// The reply was generated; losing its persistence must not lose
		// the reply itself.
		slog.Error("record assistant message", "error", err)
	}
	return reply, nil
}

// ProcessScheduledTask runs a proactive exchange for a due task. The task
// prompt is transient: only the generated reply joins the session history.
// Failures degrade to a notice so the task still reaches the user.
func (d *Driver) ProcessScheduledTask(ctx context.Context, task store.Task) string {
	reply, err := d.processScheduledTask(ctx, task)
	if err != nil {
		slog.Error("process scheduled task", "task_id", task.ID, "name", task.Name, "error", err)
		return fmt.Sprintf("[Scheduled Task] %s\n\n(Error occurred while processing, please check logs)", task.Message)
	}
	return reply
}

func (d *Driver) processScheduledTask(ctx context.Context, task store.Task) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Retrieval keys on the raw task text; the marker wrapper below is
	// prompt-only.
	sums, convs, err := d.mgr.Retrieve(ctx, task.Message, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve memories: %w", err)
	}

	wrapped := fmt.Sprintf("[SYSTEM_SCHEDULED_TASK]\nTask Name: %s\nTrigger Time: %s\nTask: %s\n\nPlease respond proactively based on this scheduled task.",
		task.Name, d.clk.FormatStamp(d.clk.Now().Unix()), task.Message)

	reply, err := d.complete(ctx, llm.ChatRequest{
		Context:                d.mgr.ContextMessages(),
		RetrievedSummaries:     sums,
		RetrievedConversations: convs,
		RecentSummaries:        d.mgr.RecentSummaries(),
		CustomMessage:          wrapped,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	if _, err := d.mgr.AddAssistantMessage(ctx, reply); err != nil {
		slog.Error("record scheduled reply", "error", err)
	}
	return reply, nil
}

// complete runs the chat call with the search tool armed only for its
// duration.
func (d *Driver) complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	if d.search != nil {
		d.search.Enable()
	}
	reply, err := d.chat.Chat(ctx, req)
	if d.search != nil {
		d.search.Disable()
	}
	return reply, err
}

// NewSession archives the current session and starts a fresh one.
func (d *Driver) NewSession(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.NewSession(ctx)
}

// ResetSession deletes the current session and starts a fresh one.
func (d *Driver) ResetSession(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mgr.ResetSession(ctx)
}
