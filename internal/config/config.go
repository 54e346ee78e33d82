// Package config loads the per-profile configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for Seele. All values come from the
// environment; a profile dotenv file fills in what the process env leaves
// unset.
type Config struct {
	Profile  string
	DataDir  string
	Timezone string

	Provider      string // "openai" or "ollama"
	OpenAIAPIKey  string
	OpenAIAPIBase string
	ChatModel     string
	ToolModel     string

	EmbeddingAPIKey    string
	EmbeddingAPIBase   string
	EmbeddingModel     string
	EmbeddingDimension int

	RerankAPIKey  string
	RerankAPIBase string
	RerankModel   string

	ContextKeepMin        int
	SummaryTrigger        int
	RecentSummariesMax    int
	RecallSummaryPerQuery int
	RecallConvPerSummary  int
	RerankTopSummaries    int
	RerankTopConvs        int

	BotName  string
	UserName string

	EnableWebSearch bool

	TelegramBotToken string
	TelegramUserID   int64

	GatewayHost string
	GatewayPort int

	DebugMode bool
	LogLevel  string
}

// Load builds the configuration. The project .env and the profile dotenv
// (data/<profile>/.env) are loaded first; variables already present in the
// process environment always win.
func Load() (*Config, error) {
	// godotenv.Load never overrides existing env vars. A missing file is fine.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Profile: getString("PROFILE", "default"),
	}

	cfg.DataDir = getString("DATA_DIR", defaultDataDir(cfg.Profile))
	_ = godotenv.Load(filepath.Join(cfg.DataDir, ".env"))

	cfg.Timezone = getString("TIMEZONE", "Asia/Shanghai")

	cfg.Provider = strings.ToLower(getString("PROVIDER", "openai"))
	if cfg.Provider != "openai" && cfg.Provider != "ollama" {
		return nil, fmt.Errorf("unknown provider %q (supported: openai, ollama)", cfg.Provider)
	}
	cfg.OpenAIAPIKey = getString("OPENAI_API_KEY", "")
	cfg.OpenAIAPIBase = getString("OPENAI_API_BASE", "")
	cfg.ChatModel = getString("CHAT_MODEL", "gpt-4o")
	cfg.ToolModel = getString("TOOL_MODEL", "gpt-4o")

	// Embedding credentials fall back to the OpenAI ones.
	cfg.EmbeddingAPIKey = getString("EMBEDDING_API_KEY", cfg.OpenAIAPIKey)
	cfg.EmbeddingAPIBase = getString("EMBEDDING_API_BASE", cfg.OpenAIAPIBase)
	cfg.EmbeddingModel = getString("EMBEDDING_MODEL", "text-embedding-3-small")
	cfg.EmbeddingDimension = getInt("EMBEDDING_DIMENSION", 1536)

	cfg.RerankAPIKey = getString("RERANK_API_KEY", "")
	cfg.RerankAPIBase = getString("RERANK_API_BASE", "")
	cfg.RerankModel = getString("RERANK_MODEL", "")

	cfg.ContextKeepMin = getInt("CONTEXT_KEEP_MIN", 12)
	cfg.SummaryTrigger = getInt("SUMMARY_TRIGGER", 24)
	cfg.RecentSummariesMax = getInt("RECENT_SUMMARIES_MAX", 3)
	cfg.RecallSummaryPerQuery = getInt("RECALL_SUMMARY_PER_QUERY", 3)
	cfg.RecallConvPerSummary = getInt("RECALL_CONV_PER_SUMMARY", 4)
	cfg.RerankTopSummaries = getInt("RERANK_TOP_SUMMARIES", 3)
	cfg.RerankTopConvs = getInt("RERANK_TOP_CONVS", 6)

	cfg.BotName = getString("BOT_NAME", "Seele")
	cfg.UserName = getString("USER_NAME", "User")

	cfg.EnableWebSearch = getBool("ENABLE_WEB_SEARCH", false)

	cfg.TelegramBotToken = getString("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramUserID = getInt64("TELEGRAM_USER_ID", 0)

	cfg.GatewayHost = getString("GATEWAY_HOST", "127.0.0.1")
	cfg.GatewayPort = getInt("GATEWAY_PORT", 18217)

	cfg.DebugMode = getBool("DEBUG_MODE", false)
	cfg.LogLevel = strings.ToLower(getString("LOG_LEVEL", "info"))

	return cfg, nil
}

// RerankEnabled reports whether the reranker is fully configured.
func (c *Config) RerankEnabled() bool {
	return c.RerankAPIKey != "" && c.RerankAPIBase != "" && c.RerankModel != ""
}

// DatabasePath returns the path of the profile's SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "chatbot.db")
}

// ProfileDocumentPath returns the path of the profile's seele.json.
func (c *Config) ProfileDocumentPath() string {
	return filepath.Join(c.DataDir, "seele.json")
}

// BootstrapTasksPath returns the path of the profile's scheduled task
// bootstrap file.
func (c *Config) BootstrapTasksPath() string {
	return filepath.Join(c.DataDir, "scheduled_tasks.json")
}

// HeartbeatPath returns the path of the profile's liveness file.
func (c *Config) HeartbeatPath() string {
	return filepath.Join(c.DataDir, "heartbeat.json")
}

// EnsureDataDir creates the profile data directory if needed.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func defaultDataDir(profile string) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "data", profile)
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// getBool treats "true", "1" and "yes" (any case) as true, everything else
// as false.
func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
