package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/seelenmaschine/seele/internal/store"
	"github.com/seelenmaschine/seele/internal/telegram"
)

const replHelp = `Available commands:
  /new    archive the current session and start a new one
  /reset  delete the current session and start over
  /quit   save state and exit
  /help   show this help
`

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Chat with Seele in the terminal",
		ArgsUsage: "[message]",
		Action:    runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	// A message argument or piped stdin means one exchange, no REPL.
	if msg := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " ")); msg != "" {
		return sendOnce(ctx, rt, msg)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			return fmt.Errorf("nothing to send: stdin was empty")
		}
		return sendOnce(ctx, rt, msg)
	}

	rt.startHeartbeat("chat")

	// Proactive messages land between prompts.
	rt.startScheduler(ctx, func(ctx context.Context, task store.Task) error {
		reply := rt.driver.ProcessScheduledTask(ctx, task)
		fmt.Printf("\n%s: %s\n> ", rt.cfg.BotName, displayReply(reply, rt.cfg.DebugMode))
		return nil
	})
	defer rt.sched.Stop()

	printBanner(ctx, rt)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() || ctx.Err() != nil {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := runReplCommand(ctx, rt, input); quit {
				return nil
			}
			continue
		}

		reply, err := rt.driver.ProcessMessage(ctx, input)
		if err != nil {
			slog.Error("process message", "error", err)
			fmt.Println("Sorry, something went wrong. Check the logs for details.")
			continue
		}
		fmt.Printf("\n%s: %s\n", rt.cfg.BotName, displayReply(reply, rt.cfg.DebugMode))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// EOF and interrupt stash the session like /quit.
	fmt.Println("\nSession saved; it will resume on the next start.")
	return nil
}

func sendOnce(ctx context.Context, rt *runtime, text string) error {
	reply, err := rt.driver.ProcessMessage(ctx, text)
	if err != nil {
		return err
	}
	fmt.Println(displayReply(reply, rt.cfg.DebugMode))
	return nil
}

func printBanner(ctx context.Context, rt *runtime) {
	fmt.Printf("Current session: %d", rt.driver.SessionID())
	if sess, err := rt.store.ActiveSession(ctx); err == nil {
		fmt.Printf(" (started %s)", rt.clk.FormatStamp(sess.StartTimestamp))
	}
	fmt.Println()

	if history := rt.driver.History(); len(history) > 0 {
		fmt.Println("\nRecent history:")
		for _, m := range history {
			name := rt.cfg.UserName
			text := m.Content
			if m.Role == "assistant" {
				name = rt.cfg.BotName
				text = displayReply(text, rt.cfg.DebugMode)
			}
			fmt.Printf("%s: %s\n", name, text)
		}
	}

	fmt.Println("\nType a message to chat (/help for commands).")
}

// runReplCommand handles one slash command; true means exit the loop.
func runReplCommand(ctx context.Context, rt *runtime, input string) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help", "/h":
		fmt.Print(replHelp)
	case "/new":
		fmt.Println("Archiving the session, this may take a moment...")
		id, err := rt.driver.NewSession(ctx)
		if err != nil {
			slog.Error("new session", "error", err)
			fmt.Println("Error archiving the session. Check the logs for details.")
			return false
		}
		fmt.Printf("Session archived. New session %d started.\n", id)
	case "/reset":
		id, err := rt.driver.ResetSession(ctx)
		if err != nil {
			slog.Error("reset session", "error", err)
			fmt.Println("Error resetting the session. Check the logs for details.")
			return false
		}
		fmt.Printf("Session reset. New session %d started.\n", id)
	case "/quit", "/exit", "/q":
		fmt.Println("Session saved; it will resume on the next start.")
		return true
	default:
		fmt.Printf("Unknown command %s (try /help)\n", input)
	}
	return false
}

// displayReply hides the thinking blockquotes unless debug mode wants
// them shown.
func displayReply(text string, debug bool) string {
	if debug {
		return text
	}
	return telegram.StripBlockquotes(text)
}
