package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/seelenmaschine/seele/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the profile's agent status",
		Action: runStatus,
	}
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	cfg, st, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	status, hb, err := heartbeat.Check(cfg.HeartbeatPath(), 2*time.Minute)
	if err != nil {
		return fmt.Errorf("check heartbeat: %w", err)
	}
	switch status {
	case heartbeat.StatusAlive:
		fmt.Printf("Agent:      ALIVE (%s, PID %d, uptime %s)\n", hb.Transport, hb.PID, hb.Uptime)
	case heartbeat.StatusStale:
		fmt.Printf("Agent:      STALE (%s, PID %d, last heartbeat %s ago)\n",
			hb.Transport, hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
	case heartbeat.StatusDead:
		fmt.Println("Agent:      NOT RUNNING")
	}

	fmt.Printf("Profile:    %s\n", cfg.Profile)
	fmt.Printf("Data dir:   %s\n", cfg.DataDir)

	version, err := st.SchemaVersionStored(ctx)
	if err != nil {
		version = "unknown"
	}
	stats, err := st.CollectStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database:   schema %s, %d sessions, %d conversations, %d summaries, %d tasks\n",
		version, stats.Sessions, stats.Conversations, stats.Summaries, stats.Tasks)

	fmt.Printf("Provider:   %s (chat %s, tool %s)\n", cfg.Provider, cfg.ChatModel, cfg.ToolModel)
	fmt.Printf("Embedding:  %s (%d dims)\n", cfg.EmbeddingModel, cfg.EmbeddingDimension)
	fmt.Printf("Reranker:   %s\n", onOff(cfg.RerankEnabled()))
	fmt.Printf("Web search: %s\n", onOff(cfg.EnableWebSearch))
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
