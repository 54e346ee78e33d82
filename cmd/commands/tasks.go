package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/seelenmaschine/seele/internal/scheduler"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage scheduled tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all scheduled tasks",
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksCancel,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	_, st, clk, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No scheduled tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tNEXT RUN\tLAST RUN")
	for _, t := range list {
		next, last := "-", "-"
		if t.NextRunAt > 0 {
			next = clk.FormatStamp(t.NextRunAt)
		}
		if t.LastRunAt > 0 {
			last = clk.FormatStamp(t.LastRunAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.TriggerType, t.Status, next, last)
	}
	return w.Flush()
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: seele tasks show <task_id>")
	}

	_, st, clk, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Name:      %s\n", t.Name)
	fmt.Printf("Type:      %s\n", t.TriggerType)
	fmt.Printf("Status:    %s\n", t.Status)
	fmt.Printf("Created:   %s\n", clk.FormatStamp(t.CreatedAt))
	if t.NextRunAt > 0 {
		fmt.Printf("Next run:  %s\n", clk.FormatStamp(t.NextRunAt))
	}
	if t.LastRunAt > 0 {
		fmt.Printf("Last run:  %s\n", clk.FormatStamp(t.LastRunAt))
	}
	if t.TriggerConfig != "" && t.TriggerConfig != "{}" {
		fmt.Printf("Trigger:   %s\n", t.TriggerConfig)
	}
	fmt.Printf("\nMessage:\n%s\n", t.Message)
	return nil
}

func runTasksCancel(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: seele tasks cancel <task_id>")
	}

	_, st, clk, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	// A scheduler without a running loop still knows the cancel rules.
	if err := scheduler.New(st, clk, nil).Cancel(ctx, taskID); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	fmt.Printf("Task %s cancelled.\n", taskID)
	return nil
}
