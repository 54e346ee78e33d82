// Package telegram is the Telegram transport: long polling for one
// authorized user, session commands, and HTML delivery of replies in
// human-paced segments.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/seelenmaschine/seele/internal/store"
)

const (
	typingInterval  = 3 * time.Second
	segmentDelayMin = 1 * time.Second
	segmentDelayMax = 2 * time.Second
)

const welcomeText = "Welcome to Seelenmaschine! 🤖\n\n" +
	"I'm your AI companion with long-term memory.\n\n" +
	"Commands:\n" +
	"/help - Show this help message\n" +
	"/new - Start a new session (archives current)\n" +
	"/reset - Reset current session\n\n" +
	"Just send me a message to start chatting!"

const helpText = "Available commands:\n\n" +
	"/start - Welcome message\n" +
	"/help - Show this help\n" +
	"/new - Archive current session and start new\n" +
	"/reset - Delete current session and start fresh\n\n" +
	"Features:\n" +
	"• Long-term memory across sessions\n" +
	"• Vector-based memory retrieval\n" +
	"• Scheduled tasks and reminders\n" +
	"• Web search\n\n" +
	"Just chat naturally - I'll remember our conversations!"

const newSessionText = "✓ New session created! Previous conversations have been summarized and archived.\n\n" +
	"I still remember our history and can recall it when relevant."

const resetSessionText = "✓ Session reset! Current conversation has been deleted.\n\n" +
	"Starting fresh, but I still have memories from previous sessions."

// Driver is the conversation pipeline behind the transport.
type Driver interface {
	ProcessMessage(ctx context.Context, text string) (string, error)
	ProcessScheduledTask(ctx context.Context, task store.Task) string
	NewSession(ctx context.Context) (int64, error)
	ResetSession(ctx context.Context) (int64, error)
}

// Bot runs the Telegram side of the conversation. Only userID may talk to
// it; everyone else gets a refusal.
type Bot struct {
	bot    *telego.Bot
	drv    Driver
	userID int64
	debug  bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the transport against the Bot API.
func New(token string, userID int64, drv Driver, debug bool) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	if userID == 0 {
		return nil, fmt.Errorf("telegram user id is not set")
	}
	b, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: b, drv: drv, userID: userID, debug: debug}, nil
}

// Start begins long polling and handles updates until Stop or ctx
// cancellation.
func (b *Bot) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram bot connected", "username", b.bot.Username())

	if err := b.registerCommands(pollCtx); err != nil {
		slog.Warn("telegram: register menu commands", "error", err)
	}

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					b.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels polling and waits for the update loop to drain, so Telegram
// releases the getUpdates lock before another instance starts.
func (b *Bot) Stop() {
	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram: polling did not stop in time")
		}
	}
	slog.Info("telegram bot stopped")
}

func (b *Bot) registerCommands(ctx context.Context) error {
	return b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "new", Description: "Archive current session and start new"},
			{Command: "reset", Description: "Delete current session and start fresh"},
			{Command: "help", Description: "Show help and available commands"},
			{Command: "start", Description: "Welcome message"},
		},
	})
}

func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	if msg.From.ID != b.userID {
		slog.Warn("telegram: unauthorized message", "user_id", msg.From.ID)
		b.sendPlain(ctx, msg.Chat.ID, "Unauthorized access.")
		return
	}

	if cmd := commandName(msg.Text); cmd != "" {
		b.handleCommand(ctx, msg.Chat.ID, cmd)
		return
	}
	b.handleText(ctx, msg.Chat.ID, msg.Text)
}

// commandName extracts the command from a "/cmd" or "/cmd@botname"
// message, empty when the message is not a command.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd string) {
	switch cmd {
	case "start":
		b.sendPlain(ctx, chatID, welcomeText)
	case "help":
		b.sendPlain(ctx, chatID, helpText)
	case "new":
		slog.Info("telegram: creating new session")
		if _, err := b.drv.NewSession(ctx); err != nil {
			slog.Error("telegram: new session", "error", err)
			b.sendPlain(ctx, chatID, "Error creating new session.")
			return
		}
		b.sendPlain(ctx, chatID, newSessionText)
	case "reset":
		slog.Info("telegram: resetting session")
		if _, err := b.drv.ResetSession(ctx); err != nil {
			slog.Error("telegram: reset session", "error", err)
			b.sendPlain(ctx, chatID, "Error resetting session.")
			return
		}
		b.sendPlain(ctx, chatID, resetSessionText)
	default:
		slog.Debug("telegram: ignoring unknown command", "command", cmd)
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	stop := b.keepTyping(ctx, chatID)
	defer stop()

	reply, err := b.drv.ProcessMessage(ctx, text)
	if err != nil {
		slog.Error("telegram: process message", "error", err)
		b.sendPlain(ctx, chatID, "Sorry, an error occurred while processing your message.")
		return
	}
	b.sendReply(ctx, chatID, reply)
}

// keepTyping refreshes the typing indicator until the returned stop func
// runs. Telegram drops the indicator after about five seconds, so it is
// resent on a shorter interval.
func (b *Bot) keepTyping(ctx context.Context, chatID int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil {
				slog.Warn("telegram: typing indicator", "error", err)
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() { close(done) }
}

// sendReply delivers a reply as one or more HTML segments with a short
// pause between them.
func (b *Bot) sendReply(ctx context.Context, chatID int64, reply string) {
	segments := SplitSegments(FormatHTML(reply, b.debug), maxSegmentLen)
	for i, seg := range segments {
		b.sendHTML(ctx, chatID, seg)
		if i < len(segments)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(segmentDelay()):
			}
		}
	}
}

// sendHTML sends one segment, falling back to plain text when Telegram
// rejects the markup.
func (b *Bot) sendHTML(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML))
	if err == nil {
		return
	}
	slog.Warn("telegram: html send failed, retrying as plain text", "error", err)
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Error("telegram: send message", "error", err)
	}
}

func (b *Bot) sendPlain(ctx context.Context, chatID int64, text string) {
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Error("telegram: send message", "error", err)
	}
}

// SendScheduled is the scheduler's delivery callback: the task runs
// through the conversation pipeline and the generated reply goes to the
// user. Only a failed send is an error, so the scheduler re-arms the task
// exactly when the user did not get it.
func (b *Bot) SendScheduled(ctx context.Context, task store.Task) error {
	reply := b.drv.ProcessScheduledTask(ctx, task)

	formatted := FormatHTML(reply, b.debug)
	_, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.userID), formatted).WithParseMode(telego.ModeHTML))
	if err == nil {
		return nil
	}
	slog.Warn("telegram: scheduled html send failed, retrying as plain text", "error", err)
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.userID), reply)); err != nil {
		return fmt.Errorf("send scheduled message: %w", err)
	}
	return nil
}

func segmentDelay() time.Duration {
	return segmentDelayMin + rand.N(segmentDelayMax-segmentDelayMin)
}
