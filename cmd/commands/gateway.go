package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/seelenmaschine/seele/internal/gateway"
	"github.com/seelenmaschine/seele/internal/store"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the HTTP gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	// CLI flags override config
	if cmd.IsSet("host") {
		rt.cfg.GatewayHost = cmd.String("host")
	}
	if cmd.IsSet("port") {
		rt.cfg.GatewayPort = cmd.Int("port")
	}

	srv := gateway.NewServer(rt.driver, rt.store, rt.clk, rt.cfg.GatewayHost, rt.cfg.GatewayPort)

	rt.startHeartbeat("gateway")

	// No push channel here: the scheduled reply joins the session history,
	// so the next /api/chat exchange carries it.
	rt.startScheduler(ctx, func(ctx context.Context, task store.Task) error {
		rt.driver.ProcessScheduledTask(ctx, task)
		slog.Info("scheduled task processed", "task_id", task.ID, "name", task.Name)
		return nil
	})
	defer rt.sched.Stop()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
