package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage conversation sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:   "new",
				Usage:  "Archive the current session and start a new one",
				Action: runSessionsNew,
			},
			{
				Name:   "reset",
				Usage:  "Delete the current session and start over",
				Action: runSessionsReset,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	_, st, clk, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tENDED")
	for _, s := range list {
		ended := "-"
		if s.EndTimestamp > 0 {
			ended = clk.FormatStamp(s.EndTimestamp)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			s.ID, s.Status, clk.FormatStamp(s.StartTimestamp), ended)
	}
	return w.Flush()
}

func runSessionsNew(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Println("Archiving the session, this may take a moment...")
	id, err := rt.driver.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	fmt.Printf("Session archived. New session %d started.\n", id)
	return nil
}

func runSessionsReset(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.driver.ResetSession(ctx)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	fmt.Printf("Session reset. New session %d started.\n", id)
	return nil
}
