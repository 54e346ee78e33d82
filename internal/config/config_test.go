package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROFILE", "")
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Profile != "default" {
		t.Errorf("Profile = %q, want default", cfg.Profile)
	}
	if cfg.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q, want Asia/Shanghai", cfg.Timezone)
	}
	if cfg.ChatModel != "gpt-4o" || cfg.ToolModel != "gpt-4o" {
		t.Errorf("models = %q/%q, want gpt-4o/gpt-4o", cfg.ChatModel, cfg.ToolModel)
	}
	if cfg.EmbeddingDimension != 1536 {
		t.Errorf("EmbeddingDimension = %d, want 1536", cfg.EmbeddingDimension)
	}
	if cfg.ContextKeepMin != 12 || cfg.SummaryTrigger != 24 {
		t.Errorf("window config = %d/%d, want 12/24", cfg.ContextKeepMin, cfg.SummaryTrigger)
	}
	if cfg.RecentSummariesMax != 3 || cfg.RecallSummaryPerQuery != 3 || cfg.RecallConvPerSummary != 4 {
		t.Errorf("recall config = %d/%d/%d, want 3/3/4",
			cfg.RecentSummariesMax, cfg.RecallSummaryPerQuery, cfg.RecallConvPerSummary)
	}
	if cfg.RerankEnabled() {
		t.Error("reranker should be disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadProfilePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PROFILE", "alice")
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Profile != "alice" {
		t.Errorf("Profile = %q, want alice", cfg.Profile)
	}
	if got, want := cfg.DatabasePath(), filepath.Join(dir, "chatbot.db"); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}
	if got, want := cfg.ProfileDocumentPath(), filepath.Join(dir, "seele.json"); got != want {
		t.Errorf("ProfileDocumentPath = %q, want %q", got, want)
	}
	if got, want := cfg.BootstrapTasksPath(), filepath.Join(dir, "scheduled_tasks.json"); got != want {
		t.Errorf("BootstrapTasksPath = %q, want %q", got, want)
	}
}

func TestEmbeddingCredentialsInherit(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-parent")
	t.Setenv("OPENAI_API_BASE", "https://proxy.example.com/v1")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("EMBEDDING_API_BASE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EmbeddingAPIKey != "sk-parent" {
		t.Errorf("EmbeddingAPIKey = %q, want inherited sk-parent", cfg.EmbeddingAPIKey)
	}
	if cfg.EmbeddingAPIBase != "https://proxy.example.com/v1" {
		t.Errorf("EmbeddingAPIBase = %q, want inherited base", cfg.EmbeddingAPIBase)
	}
}

func TestBoolParsing(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"banana", false},
	}
	for _, tc := range cases {
		t.Setenv("ENABLE_WEB_SEARCH", tc.value)
		if got := getBool("ENABLE_WEB_SEARCH", false); got != tc.want {
			t.Errorf("getBool(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestIntParsingInvalidFallsBack(t *testing.T) {
	t.Setenv("SUMMARY_TRIGGER", "not-a-number")
	if got := getInt("SUMMARY_TRIGGER", 24); got != 24 {
		t.Errorf("getInt = %d, want fallback 24", got)
	}
	t.Setenv("SUMMARY_TRIGGER", "30")
	if got := getInt("SUMMARY_TRIGGER", 24); got != 30 {
		t.Errorf("getInt = %d, want 30", got)
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PROVIDER", "smoke-signals")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an unknown provider")
	}
	t.Setenv("PROVIDER", "ollama")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", cfg.Provider)
	}
}

func TestRerankEnabledNeedsAllThree(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RERANK_API_KEY", "rk")
	t.Setenv("RERANK_API_BASE", "https://rerank.example.com")
	t.Setenv("RERANK_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RerankEnabled() {
		t.Error("reranker enabled without a model")
	}

	t.Setenv("RERANK_MODEL", "rerank-v2")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.RerankEnabled() {
		t.Error("reranker disabled despite full configuration")
	}
}
