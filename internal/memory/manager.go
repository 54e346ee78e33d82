// Package memory maintains the conversation context: the in-process
// window of recent messages, automatic summarization into the store, and
// retrieval of related history for the prompt.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/config"
	"github.com/seelenmaschine/seele/internal/llm"
	"github.com/seelenmaschine/seele/internal/profile"
	"github.com/seelenmaschine/seele/internal/store"
)

// profileRetries bounds the full-document regeneration fallback.
const profileRetries = 2

// Generator is the slice of the LLM client the manager needs for
// summaries and profile upkeep.
type Generator interface {
	GenerateSummary(ctx context.Context, messages []llm.Message) (string, error)
	GenerateMemoryPatch(ctx context.Context, messages []llm.Message, currentProfileJSON string, firstTS, lastTS int64) (string, error)
	GenerateFullProfile(ctx context.Context, messages []llm.Message, currentProfileJSON, errorMessage string, firstTS, lastTS int64) (string, error)
}

// Manager owns the context window of the active session. It persists
// every message, condenses the window into summaries once it grows past
// the trigger size, and folds summarized batches into the profile.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	profiles *profile.Store
	gen      Generator
	embedder Embedder
	window   *Window
	retr     *Retriever
	clk      *clock.Clock

	sessionID int64
}

// NewManager wires a manager over the store and profile document.
// RestoreSession must run before messages are added.
func NewManager(cfg *config.Config, st *store.Store, profiles *profile.Store, gen Generator, embedder Embedder, reranker Reranker, clk *clock.Clock) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    st,
		profiles: profiles,
		gen:      gen,
		embedder: embedder,
		window:   NewWindow(cfg.RecentSummariesMax),
		retr:     NewRetriever(st, embedder, reranker, clk, cfg),
		clk:      clk,
	}
}

// SessionID returns the active session's id.
func (m *Manager) SessionID() int64 { return m.sessionID }

// ContextMessages returns the window's messages in chat form.
func (m *Manager) ContextMessages() []llm.Message { return m.window.AsChatMessages() }

// RecentSummaries returns the window's recent summary texts, oldest
// first.
func (m *Manager) RecentSummaries() []string { return m.window.RecentSummaryTexts() }

// RestoreSession loads the active session into the window, creating a
// fresh session when none is active. A long unsummarized backlog is
// condensed so the window comes back at its usual size.
func (m *Manager) RestoreSession(ctx context.Context) error {
	sess, err := m.store.ActiveSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		id, err := m.store.CreateSession(ctx, m.clk.Now().Unix())
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		m.sessionID = id
		slog.Info("created new active session", "session_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	m.sessionID = sess.ID
	if err := m.restoreWindow(ctx); err != nil {
		return err
	}
	slog.Info("restored context from active session", "session_id", sess.ID)
	return nil
}

func (m *Manager) restoreWindow(ctx context.Context) error {
	sums, err := m.store.SummariesBySession(ctx, m.sessionID, m.cfg.RecentSummariesMax)
	if err != nil {
		return fmt.Errorf("restore summaries: %w", err)
	}
	for _, s := range sums {
		m.window.AddSummary(s.Summary, s.ID)
	}

	convs, err := m.store.UnsummarizedConversations(ctx, m.sessionID)
	if err != nil {
		return fmt.Errorf("restore conversations: %w", err)
	}
	keep := m.keepMin()
	toSummarize := len(convs) - keep
	if len(convs) < m.cfg.SummaryTrigger || toSummarize <= 0 {
		for _, c := range convs {
			m.window.AddMessage(c.Role, c.Text, c.Timestamp)
		}
		return nil
	}

	// Condense the oldest len-keep messages in batches of keep, then
	// window the newest keep verbatim.
	slog.Info("condensing unsummarized backlog", "total", len(convs), "summarizing", toSummarize)
	for done := 0; done < toSummarize; {
		n := keep
		if rem := toSummarize - done; rem < n {
			n = rem
		}
		if _, err := m.summarizeBatch(ctx, toMessages(convs[done:done+n])); err != nil {
			return err
		}
		done += n
	}
	for _, c := range convs[toSummarize:] {
		m.window.AddMessage(c.Role, c.Text, c.Timestamp)
	}
	return nil
}

// AddUserMessage persists the user's message with its embedding and
// appends it to the window. The embedding is returned so retrieval can
// reuse it without another upstream call.
func (m *Manager) AddUserMessage(ctx context.Context, text string) ([]float32, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed user message: %w", err)
	}
	ts := m.clk.Now().Unix()
	id, err := m.store.AddConversation(ctx, m.sessionID, "user", text, ts)
	if err != nil {
		return nil, err
	}
	if err := m.store.PutConversationEmbedding(ctx, id, vec); err != nil {
		return nil, err
	}
	m.window.AddMessage("user", text, ts)
	return vec, nil
}

// AddAssistantMessage persists the assistant's reply, then condenses the
// window when it crossed the trigger size. The returned id is the created
// summary's, zero when none was due. The reply is stored even when its
// embedding cannot be produced; summarization problems are logged rather
// than failing an already-delivered reply.
func (m *Manager) AddAssistantMessage(ctx context.Context, text string) (int64, error) {
	ts := m.clk.Now().Unix()
	id, err := m.store.AddConversation(ctx, m.sessionID, "assistant", text, ts)
	if err != nil {
		return 0, err
	}
	if vec, err := m.embedder.Embed(ctx, text); err != nil {
		slog.Error("embed assistant message", "conversation_id", id, "error", err)
	} else if err := m.store.PutConversationEmbedding(ctx, id, vec); err != nil {
		return 0, err
	}
	m.window.AddMessage("assistant", text, ts)

	summaryID, err := m.maybeSummarize(ctx)
	if err != nil {
		slog.Error("summarize window", "error", err)
		return 0, nil
	}
	return summaryID, nil
}

// Retrieve finds history related to text, excluding summaries already in
// the window. The assistant's last reply serves as a second query leg so
// short follow-ups still recall what they follow up on. textVec, when
// non-nil, skips re-embedding text.
func (m *Manager) Retrieve(ctx context.Context, text string, textVec []float32) (summaries, conversations []string, err error) {
	return m.retr.Retrieve(ctx, Query{
		Text:              text,
		TextVec:           textVec,
		LastBotText:       m.window.LastAssistantText(),
		ExcludeSummaryIDs: m.window.RecentSummaryIDs(),
	})
}

// NewSession archives the current session: the window's remaining
// messages become one final summary with a profile update, the session is
// closed, and a fresh one opens with a clean window.
func (m *Manager) NewSession(ctx context.Context) (int64, error) {
	if msgs := m.window.Messages(); len(msgs) > 0 {
		slog.Info("summarizing remaining messages before closing session", "count", len(msgs))
		if _, err := m.summarizeBatch(ctx, msgs); err != nil {
			return 0, fmt.Errorf("final summary: %w", err)
		}
	}
	now := m.clk.Now().Unix()
	if err := m.store.CloseSession(ctx, m.sessionID, now); err != nil {
		return 0, fmt.Errorf("close session %d: %w", m.sessionID, err)
	}
	id, err := m.store.CreateSession(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	m.sessionID = id
	m.window.Clear()
	slog.Info("created new session", "session_id", id)
	return id, nil
}

// ResetSession deletes the current session with all its stored data and
// opens a fresh one. Summaries and profile state from earlier sessions
// are untouched.
func (m *Manager) ResetSession(ctx context.Context) (int64, error) {
	if err := m.store.DeleteSession(ctx, m.sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("delete session %d: %w", m.sessionID, err)
	}
	id, err := m.store.CreateSession(ctx, m.clk.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	m.sessionID = id
	m.window.Clear()
	slog.Info("reset to new session", "session_id", id)
	return id, nil
}

// maybeSummarize condenses the window's oldest messages into one summary
// once the window reaches the trigger size, keeping the newest keep-min
// messages verbatim.
func (m *Manager) maybeSummarize(ctx context.Context) (int64, error) {
	if m.window.MessageCount() < m.cfg.SummaryTrigger {
		return 0, nil
	}
	prefix := m.window.MessagesForSummary(m.keepMin())
	if len(prefix) == 0 {
		return 0, nil
	}
	id, err := m.summarizeBatch(ctx, prefix)
	if err != nil {
		return 0, err
	}
	m.window.RemoveEarliest(len(prefix))
	return id, nil
}

// summarizeBatch condenses msgs into one stored summary spanning their
// real timestamps, embeds it, pushes it onto the window's recent list and
// folds the batch into the profile. Embedding and profile failures are
// logged; the summary itself must succeed.
func (m *Manager) summarizeBatch(ctx context.Context, msgs []Message) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	text, err := m.gen.GenerateSummary(ctx, toLLM(msgs))
	if err != nil {
		return 0, fmt.Errorf("generate summary: %w", err)
	}
	first, last := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
	id, err := m.store.AddSummary(ctx, m.sessionID, text, first, last)
	if err != nil {
		return 0, err
	}
	if vec, err := m.embedder.Embed(ctx, text); err != nil {
		slog.Error("embed summary", "summary_id", id, "error", err)
	} else if err := m.store.PutSummaryEmbedding(ctx, id, vec); err != nil {
		slog.Error("store summary embedding", "summary_id", id, "error", err)
	}
	m.window.AddSummary(text, id)
	if err := m.updateProfile(ctx, msgs, first, last); err != nil {
		slog.Error("update profile", "summary_id", id, "error", err)
	}
	slog.Info("created summary", "summary_id", id, "messages", len(msgs))
	return id, nil
}

// updateProfile folds a summarized batch into seele.json: first as an RFC
// 6902 patch, then, when the patch cannot be applied, as full-document
// regeneration with the previous error fed back into each retry.
func (m *Manager) updateProfile(ctx context.Context, msgs []Message, firstTS, lastTS int64) error {
	profileJSON, err := m.profiles.DocumentJSON()
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	patch, err := m.gen.GenerateMemoryPatch(ctx, toLLM(msgs), profileJSON, firstTS, lastTS)
	if err != nil {
		return fmt.Errorf("generate patch: %w", err)
	}
	patchErr := m.profiles.ApplyPatch([]byte(strings.TrimSpace(patch)))
	if patchErr == nil {
		slog.Info("profile updated by patch")
		return nil
	}
	slog.Warn("profile patch rejected, regenerating document", "error", patchErr)

	lastErr := patchErr
	for attempt := 1; attempt <= profileRetries; attempt++ {
		current, err := m.profiles.DocumentJSON()
		if err != nil {
			return fmt.Errorf("read profile: %w", err)
		}
		raw, err := m.gen.GenerateFullProfile(ctx, toLLM(msgs), current, lastErr.Error(), firstTS, lastTS)
		if err != nil {
			lastErr = err
			slog.Error("generate full profile", "attempt", attempt, "error", err)
			continue
		}
		var doc profile.Document
		if err := json.Unmarshal([]byte(extractJSONObject(raw)), &doc); err != nil {
			lastErr = fmt.Errorf("previous generation was not valid JSON (%v); return one complete JSON object with proper quoting, no trailing commas and matched braces", err)
			slog.Warn("regenerated profile did not parse", "attempt", attempt, "error", err)
			continue
		}
		if err := m.profiles.ReplaceDocument(doc); err != nil {
			lastErr = fmt.Errorf("previous generation had invalid structure (%v); include all required sections: bot, user, memorable_events, commands_and_agreements", err)
			slog.Warn("regenerated profile rejected", "attempt", attempt, "error", err)
			continue
		}
		slog.Info("profile regenerated", "attempt", attempt)
		return nil
	}
	return fmt.Errorf("profile update failed after %d attempts: %w", profileRetries, lastErr)
}

func (m *Manager) keepMin() int {
	if m.cfg.ContextKeepMin < 1 {
		return 1
	}
	return m.cfg.ContextKeepMin
}

// extractJSONObject strips markdown fences and surrounding prose, keeping
// the outermost JSON object of the response.
func extractJSONObject(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func toMessages(convs []store.Conversation) []Message {
	msgs := make([]Message, len(convs))
	for i, c := range convs {
		msgs[i] = Message{Role: c.Role, Text: c.Text, Timestamp: c.Timestamp}
	}
	return msgs
}
