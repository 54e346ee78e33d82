package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/seelenmaschine/seele/internal/config"
)

func newTestReranker(url string) *Reranker {
	return NewReranker(&config.Config{
		RerankAPIKey:  "test-key",
		RerankAPIBase: url,
		RerankModel:   "rerank-v3",
	})
}

func TestRerankOrdersByScore(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rerank" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.91},
				{"index": 0, "relevance_score": 0.44},
				{"index": 1, "relevance_score": 0.12},
			},
		})
	}))
	defer srv.Close()

	r := newTestReranker(srv.URL)
	got := r.Rerank(context.Background(), "best city", []string{"doc a", "doc b", "doc c"}, 2)

	if !reflect.DeepEqual(got, []int{2, 0}) {
		t.Errorf("Rerank = %v, want [2 0]", got)
	}
	if gotPayload["model"] != "rerank-v3" || gotPayload["query"] != "best city" {
		t.Errorf("payload = %v", gotPayload)
	}
	if gotPayload["top_n"] != float64(2) {
		t.Errorf("top_n = %v", gotPayload["top_n"])
	}
	docs, _ := gotPayload["documents"].([]any)
	if len(docs) != 3 || docs[1] != "doc b" {
		t.Errorf("documents = %v", docs)
	}
}

func TestRerankServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newTestReranker(srv.URL)
	got := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Rerank = %v, want passthrough [0 1]", got)
	}
}

func TestRerankMissingResultsFieldFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"meta": "ok"})
	}))
	defer srv.Close()

	r := newTestReranker(srv.URL)
	got := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Rerank = %v, want passthrough [0 1]", got)
	}
}

func TestRerankOutOfRangeIndexFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 9, "relevance_score": 0.9}},
		})
	}))
	defer srv.Close()

	r := newTestReranker(srv.URL)
	got := r.Rerank(context.Background(), "q", []string{"a", "b"}, 1)
	if !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Rerank = %v, want passthrough [0]", got)
	}
}

func TestRerankDisabled(t *testing.T) {
	r := NewReranker(&config.Config{RerankAPIKey: "key-only"})
	if r.Enabled() {
		t.Error("reranker should require key, base URL and model")
	}

	got := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 5)
	if !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Rerank = %v, want clamped passthrough [0 1 2]", got)
	}
}
