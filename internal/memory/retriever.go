package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/config"
	"github.com/seelenmaschine/seele/internal/store"
)

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidate texts by relevance to a query, returning
// the indices of the kept texts best first.
type Reranker interface {
	Enabled() bool
	Rerank(ctx context.Context, query string, texts []string, topN int) []int
}

// Retriever finds historical summaries and conversations related to the
// current exchange and renders them as prompt lines.
type Retriever struct {
	store    *store.Store
	embedder Embedder
	reranker Reranker
	clk      *clock.Clock

	recallSummaries int // vector hits per query leg
	recallConvs     int // conversations fetched per summary span
	topSummaries    int // summaries kept after rerank or truncation
	topConvs        int // conversations kept after rerank or truncation
}

// NewRetriever wires a retriever against the store and the recall limits
// from cfg.
func NewRetriever(st *store.Store, embedder Embedder, reranker Reranker, clk *clock.Clock, cfg *config.Config) *Retriever {
	return &Retriever{
		store:           st,
		embedder:        embedder,
		reranker:        reranker,
		clk:             clk,
		recallSummaries: cfg.RecallSummaryPerQuery,
		recallConvs:     cfg.RecallConvPerSummary,
		topSummaries:    cfg.RerankTopSummaries,
		topConvs:        cfg.RerankTopConvs,
	}
}

// Query is one retrieval request. TextVec, when set, is reused instead of
// embedding Text again. LastBotText adds a second search leg so replies to
// the assistant's last message still recall what that message was about.
type Query struct {
	Text              string
	TextVec           []float32
	LastBotText       string
	ExcludeSummaryIDs []int64
}

// Retrieve searches summaries by vector for the query (and, when present,
// for the last assistant message), unions both hit lists, expands each
// summary into the conversations of its time span, then reranks or
// truncates both lists. Results come back formatted for the prompt.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (summaries, conversations []string, err error) {
	vec := q.TextVec
	if vec == nil {
		vec, err = r.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, nil, fmt.Errorf("embed query: %w", err)
		}
	}

	matches, err := r.store.SearchSummariesByEmbedding(ctx, vec, r.recallSummaries, q.ExcludeSummaryIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("search summaries: %w", err)
	}

	if q.LastBotText != "" {
		botVec, err := r.embedder.Embed(ctx, q.LastBotText)
		if err != nil {
			return nil, nil, fmt.Errorf("embed last assistant message: %w", err)
		}
		botMatches, err := r.store.SearchSummariesByEmbedding(ctx, botVec, r.recallSummaries, q.ExcludeSummaryIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("search summaries: %w", err)
		}
		seen := make(map[int64]bool, len(matches))
		for _, m := range matches {
			seen[m.ID] = true
		}
		for _, m := range botMatches {
			if !seen[m.ID] {
				matches = append(matches, m)
			}
		}
	}

	var convs []store.Conversation
	for _, m := range matches {
		spanConvs, err := r.store.ConversationsByTimeRange(ctx, m.FirstTimestamp, m.LastTimestamp, r.recallConvs)
		if err != nil {
			return nil, nil, fmt.Errorf("conversations for summary %d: %w", m.ID, err)
		}
		convs = append(convs, spanConvs...)
	}

	matches = pickSummaries(ctx, r.reranker, q.Text, matches, r.topSummaries)
	convs = pickConversations(ctx, r.reranker, q.Text, convs, r.topConvs)

	slog.Debug("retrieved memories", "summaries", len(matches), "conversations", len(convs))
	return r.formatSummaries(matches), r.formatConversations(convs), nil
}

func pickSummaries(ctx context.Context, rr Reranker, query string, matches []store.SummaryMatch, topN int) []store.SummaryMatch {
	if rr != nil && rr.Enabled() && len(matches) > 0 {
		texts := make([]string, len(matches))
		for i, m := range matches {
			texts[i] = m.Summary.Summary
		}
		picked := make([]store.SummaryMatch, 0, topN)
		for _, i := range rr.Rerank(ctx, query, texts, topN) {
			picked = append(picked, matches[i])
		}
		return picked
	}
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

func pickConversations(ctx context.Context, rr Reranker, query string, convs []store.Conversation, topN int) []store.Conversation {
	if rr != nil && rr.Enabled() && len(convs) > 0 {
		texts := make([]string, len(convs))
		for i, c := range convs {
			texts[i] = c.Text
		}
		picked := make([]store.Conversation, 0, topN)
		for _, i := range rr.Rerank(ctx, query, texts, topN) {
			picked = append(picked, convs[i])
		}
		return picked
	}
	if len(convs) > topN {
		convs = convs[:topN]
	}
	return convs
}

func (r *Retriever) formatSummaries(matches []store.SummaryMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, r.clk.RangeLabel(m.FirstTimestamp, m.LastTimestamp)+" "+m.Summary.Summary)
	}
	return out
}

func (r *Retriever) formatConversations(convs []store.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		role := "Assistant"
		if c.Role == "user" {
			role = "User"
		}
		out = append(out, fmt.Sprintf("[%s] %s: %s", r.clk.FormatStamp(c.Timestamp), role, c.Text))
	}
	return out
}
