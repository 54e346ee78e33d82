package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/seelenmaschine/seele/internal/config"
)

// Reranker reorders retrieval candidates through a Cohere-style /rerank
// endpoint. It is active only when key, base URL and model are all
// configured, and every failure degrades to the original order.
type Reranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewReranker builds a reranker from the rerank config block.
func NewReranker(cfg *config.Config) *Reranker {
	return &Reranker{
		apiKey:  cfg.RerankAPIKey,
		baseURL: strings.TrimRight(cfg.RerankAPIBase, "/"),
		model:   cfg.RerankModel,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether rerank calls will actually hit the API.
func (r *Reranker) Enabled() bool {
	return r.apiKey != "" && r.baseURL != "" && r.model != ""
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank returns the indices of the topN texts most relevant to query,
// best first. When disabled, or on any transport or format problem, it
// returns the first topN indices unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string, topN int) []int {
	if topN > len(texts) {
		topN = len(texts)
	}
	if !r.Enabled() || len(texts) == 0 {
		return headIndices(topN)
	}

	payload, err := json.Marshal(map[string]any{
		"model":     r.model,
		"query":     query,
		"documents": texts,
		"top_n":     topN,
	})
	if err != nil {
		slog.Error("marshal rerank request", "error", err)
		return headIndices(topN)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		slog.Error("build rerank request", "error", err)
		return headIndices(topN)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("rerank request failed", "error", err)
		return headIndices(topN)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("rerank API returned non-200", "status", resp.StatusCode)
		return headIndices(topN)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		slog.Warn("decode rerank response", "error", err)
		return headIndices(topN)
	}
	if decoded.Results == nil {
		slog.Warn("rerank response missing results field")
		return headIndices(topN)
	}

	sort.SliceStable(decoded.Results, func(i, j int) bool {
		return decoded.Results[i].RelevanceScore > decoded.Results[j].RelevanceScore
	})

	out := make([]int, 0, topN)
	for _, res := range decoded.Results {
		if len(out) == topN {
			break
		}
		if res.Index < 0 || res.Index >= len(texts) {
			slog.Warn("rerank result index out of range", "index", res.Index)
			return headIndices(topN)
		}
		out = append(out, res.Index)
	}
	return out
}

func headIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
