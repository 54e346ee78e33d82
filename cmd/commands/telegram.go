package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/seelenmaschine/seele/internal/telegram"
)

// NewTelegramCommand returns the telegram subcommand.
func NewTelegramCommand() *cli.Command {
	return &cli.Command{
		Name:   "telegram",
		Usage:  "Run Seele as a Telegram bot",
		Action: runTelegram,
	}
}

func runTelegram(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	tg, err := telegram.New(rt.cfg.TelegramBotToken, rt.cfg.TelegramUserID, rt.driver, rt.cfg.DebugMode)
	if err != nil {
		return err
	}
	if err := tg.Start(ctx); err != nil {
		return err
	}

	rt.startHeartbeat("telegram")
	rt.startScheduler(ctx, tg.SendScheduled)
	slog.Info("telegram bot running", "session_id", rt.driver.SessionID())

	<-ctx.Done()
	slog.Info("shutting down...")
	rt.sched.Stop()
	tg.Stop()
	return nil
}
