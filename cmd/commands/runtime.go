package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/seelenmaschine/seele/internal/bot"
	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/config"
	"github.com/seelenmaschine/seele/internal/heartbeat"
	"github.com/seelenmaschine/seele/internal/llm"
	"github.com/seelenmaschine/seele/internal/memory"
	"github.com/seelenmaschine/seele/internal/models"
	"github.com/seelenmaschine/seele/internal/profile"
	"github.com/seelenmaschine/seele/internal/scheduler"
	"github.com/seelenmaschine/seele/internal/store"
	"github.com/seelenmaschine/seele/internal/tools"
)

// runtime is the assembled conversation stack behind one profile.
type runtime struct {
	cfg    *config.Config
	clk    *clock.Clock
	store  *store.Store
	driver *bot.Driver
	sched  *scheduler.Scheduler

	hb *heartbeat.Writer
}

// loadConfig maps the root flags onto the environment and loads the
// configuration. The config contract is env-driven; the flags are just
// shorthand for the corresponding variables.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if p := cmd.String("profile"); p != "" {
		os.Setenv("PROFILE", p)
	}
	if cmd.Bool("debug") {
		os.Setenv("DEBUG_MODE", "true")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.DebugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStore is the light path for the management commands: config, store
// and clock, nothing that talks to a model.
func openStore(cmd *cli.Command) (*config.Config, *store.Store, *clock.Clock, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, nil, err
	}
	st, err := store.Open(cfg.DatabasePath(), cfg.EmbeddingDimension)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, clock.New(cfg.Timezone), nil
}

// openRuntime wires the full stack: store, profile document, models,
// memory manager, tools and driver, and restores the active session. The
// scheduler is constructed here because the task tool holds it, but it is
// not started; transports bind a delivery callback via startScheduler.
func openRuntime(ctx context.Context, cmd *cli.Command) (*runtime, error) {
	cfg, st, clk, err := openStore(cmd)
	if err != nil {
		return nil, err
	}

	profiles := profile.NewStore(cfg.ProfileDocumentPath(), cfg.BotName, cfg.UserName)

	client, err := llm.NewClient(ctx, cfg, profiles, clk)
	if err != nil {
		st.Close()
		return nil, err
	}
	embedder, err := models.NewEmbedder(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	mgr := memory.NewManager(cfg, st, profiles, client,
		llm.NewCachingEmbedder(embedder, cfg.EmbeddingDimension),
		llm.NewReranker(cfg), clk)
	sched := scheduler.New(st, clk, nil)

	// The search tool runs inside the driver's lock, so its session lookup
	// must read from the manager, not from the locking driver.
	searchTool := tools.NewMemorySearchTool(st, clk, mgr.SessionID)
	toolset := []tools.Tool{searchTool, tools.NewScheduledTaskTool(sched, clk)}
	if cfg.EnableWebSearch {
		ws, err := tools.NewWebSearchTool(ctx)
		if err != nil {
			slog.Warn("web search unavailable", "error", err)
		} else {
			toolset = append(toolset, ws)
		}
	}
	if err := client.RegisterTools(ctx, tools.NewRunner(toolset...)); err != nil {
		st.Close()
		return nil, err
	}

	drv := bot.New(mgr, client, searchTool, clk)
	if err := drv.Restore(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return &runtime{cfg: cfg, clk: clk, store: st, driver: drv, sched: sched}, nil
}

// startScheduler binds the delivery callback, loads the profile's task
// bootstrap file when present, and starts the polling loop.
func (rt *runtime) startScheduler(ctx context.Context, deliver scheduler.Callback) {
	rt.sched.SetCallback(deliver)
	if path := rt.cfg.BootstrapTasksPath(); fileExists(path) {
		if err := rt.sched.LoadBootstrapFile(ctx, path); err != nil {
			slog.Error("load scheduled task bootstrap", "path", path, "error", err)
		}
	}
	rt.sched.Start()
}

// startHeartbeat marks this process as the one serving the profile.
func (rt *runtime) startHeartbeat(transport string) {
	rt.hb = heartbeat.NewWriter(rt.cfg.HeartbeatPath(), transport)
	rt.hb.Start()
}

// Close stops the heartbeat and releases the store. A started scheduler
// must be stopped by the transport before Close.
func (rt *runtime) Close() {
	if rt.hb != nil {
		rt.hb.Stop()
	}
	if err := rt.store.Close(); err != nil {
		slog.Error("close store", "error", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
