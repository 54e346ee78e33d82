package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/scheduler"
	"github.com/seelenmaschine/seele/internal/store"
)

const scheduledTaskDesc = `Manage scheduled tasks like reminders and recurring messages.

WHEN TO USE:
- User asks to set a reminder, alarm, or notification for future time
- User wants recurring messages (daily, weekly, etc.)
- User needs to be reminded about something later
- User asks to cancel, pause, or check existing reminders/tasks
- User mentions "remind me", "set a timer", "every day at..."

AVAILABLE ACTIONS:
- add: Create a new task (one-time or recurring)
- list: Show all active tasks
- get: View details of a specific task
- cancel: Delete a task permanently
- pause: Temporarily stop a task (can be resumed)
- resume: Reactivate a paused task

TIME FORMATS:
- One-time tasks: "30m" (30 minutes), "2h" (2 hours), "1d" (1 day), "1w" (1 week), or specific datetime
- Recurring tasks: Use interval format like "1h" (every hour), "1d" (daily), "7d" (weekly)`

// ScheduledTaskTool manages reminders and recurring messages through the
// scheduler.
type ScheduledTaskTool struct {
	sched *scheduler.Scheduler
	clk   *clock.Clock
}

// NewScheduledTaskTool builds the scheduled_task tool.
func NewScheduledTaskTool(sched *scheduler.Scheduler, clk *clock.Clock) *ScheduledTaskTool {
	return &ScheduledTaskTool{sched: sched, clk: clk}
}

// Name returns the registration name.
func (t *ScheduledTaskTool) Name() string { return "scheduled_task" }

// Info returns the tool schema.
func (t *ScheduledTaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: scheduledTaskDesc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"action": {
				Type:     schema.String,
				Enum:     []string{"add", "list", "get", "cancel", "pause", "resume"},
				Desc:     "Action to perform on tasks. Use 'add' to create new task, 'list' to see all tasks, 'get' for details, 'cancel' to delete, 'pause' to temporarily stop, 'resume' to reactivate.",
				Required: true,
			},
			"task_id": {
				Type: schema.String,
				Desc: "Unique task identifier. Required for 'get', 'cancel', 'pause', and 'resume' actions. Get the ID from the 'list' action.",
			},
			"name": {
				Type: schema.String,
				Desc: "Task name to identify it. Use descriptive names like 'Morning reminder', 'Project deadline alert' (required for 'add' action)",
			},
			"trigger_type": {
				Type: schema.String,
				Enum: []string{"once", "interval"},
				Desc: "Task trigger type. 'once' = single reminder (e.g., 'in 30 minutes'), 'interval' = recurring (e.g., 'every day at 9am'). Required for 'add' action.",
			},
			"time": {
				Type: schema.String,
				Desc: "When the task should trigger. Required for 'add' action. For 'once' tasks: a duration like '30s', '5m', '2h', '1d', '1w', or a specific datetime like '2026-02-01 14:30:00'. For 'interval' (recurring) tasks: an interval like '30s', '5m', '1h', '1d', '7d'.",
			},
			"message": {
				Type: schema.String,
				Desc: "The reminder message to send when the task triggers. Required for 'add' action. Keep it clear and actionable. Example: 'Time for your daily standup meeting!'",
			},
		}),
	}, nil
}

type scheduledTaskInput struct {
	Action      string `json:"action"`
	TaskID      string `json:"task_id"`
	Name        string `json:"name"`
	TriggerType string `json:"trigger_type"`
	Time        string `json:"time"`
	Message     string `json:"message"`
}

// InvokableRun dispatches one task management action.
func (t *ScheduledTaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in scheduledTaskInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("scheduled_task: parse input: %w", err)
	}

	switch in.Action {
	case "add":
		return t.add(ctx, in)
	case "list":
		return t.list(ctx)
	case "get":
		return t.get(ctx, in.TaskID)
	case "cancel":
		return t.cancel(ctx, in.TaskID)
	case "pause":
		return t.pause(ctx, in.TaskID)
	case "resume":
		return t.resume(ctx, in.TaskID)
	default:
		return fmt.Sprintf("Unknown action: %s", in.Action), nil
	}
}

func (t *ScheduledTaskTool) add(ctx context.Context, in scheduledTaskInput) (string, error) {
	name := in.Name
	if name == "" {
		name = "Unnamed Task"
	}
	if in.TriggerType == "" {
		return "Error: trigger_type is required (once or interval)", nil
	}
	if in.Time == "" {
		return "Error: time is required", nil
	}
	if in.Message == "" {
		return "Error: message is required", nil
	}

	var cfgJSON string
	switch in.TriggerType {
	case store.TriggerOnce:
		ts, err := t.clk.ParseTimeExpression(in.Time, t.clk.Now())
		if err != nil {
			// Bare durations like "30m" mean an offset from now.
			secs, derr := parseInterval(in.Time)
			if derr != nil {
				return fmt.Sprintf("Error: Could not parse time expression '%s'", in.Time), nil
			}
			ts = t.clk.Now().Unix() + secs
		}
		cfgJSON = fmt.Sprintf(`{"timestamp": %d}`, ts)
	case store.TriggerInterval:
		secs, err := parseInterval(in.Time)
		if err != nil {
			return fmt.Sprintf("Error: Invalid interval '%s'. Use format like '1h', '30m', '1d'", in.Time), nil
		}
		cfgJSON = fmt.Sprintf(`{"interval": %d}`, secs)
	default:
		return fmt.Sprintf("Error: Invalid trigger_type '%s'", in.TriggerType), nil
	}

	task, err := t.sched.Add(ctx, name, in.TriggerType, cfgJSON, in.Message)
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}

	if in.TriggerType == store.TriggerOnce {
		return fmt.Sprintf("✓ Task created (ID: %s)\nName: %s\nType: One-time\nTrigger at: %s\nMessage: %s",
			task.ID, name, t.clk.FormatStamp(task.NextRunAt), in.Message), nil
	}
	return fmt.Sprintf("✓ Task created (ID: %s)\nName: %s\nType: Recurring\nInterval: %s\nMessage: %s",
		task.ID, name, in.Time, in.Message), nil
}

// taskTrigger mirrors the stored trigger_config JSON.
type taskTrigger struct {
	Timestamp int64 `json:"timestamp"`
	Interval  int64 `json:"interval"`
}

func (t *ScheduledTaskTool) list(ctx context.Context) (string, error) {
	tasks, err := t.sched.List(ctx, store.TaskActive)
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	if len(tasks) == 0 {
		return "No active tasks found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active tasks (%d):\n\n", len(tasks))
	for _, task := range tasks {
		var tc taskTrigger
		_ = json.Unmarshal([]byte(task.TriggerConfig), &tc)

		fmt.Fprintf(&b, "• %s\n", task.Name)
		fmt.Fprintf(&b, "  ID: %s\n", task.ID)
		fmt.Fprintf(&b, "  Type: %s\n", task.TriggerType)
		if task.TriggerType == store.TriggerOnce {
			fmt.Fprintf(&b, "  Trigger at: %s\n", t.clk.FormatStamp(tc.Timestamp))
		} else {
			fmt.Fprintf(&b, "  Interval: %s\n", formatInterval(tc.Interval))
			fmt.Fprintf(&b, "  Next run: %s\n", t.clk.FormatStamp(task.NextRunAt))
		}
		fmt.Fprintf(&b, "  Message: %s...\n\n", truncateRunes(task.Message, 50))
	}
	return strings.TrimSpace(b.String()), nil
}

func (t *ScheduledTaskTool) get(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "Error: task_id is required", nil
	}
	task, err := t.sched.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "Task not found: " + id, nil
	}
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}

	var tc taskTrigger
	_ = json.Unmarshal([]byte(task.TriggerConfig), &tc)

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Name)
	fmt.Fprintf(&b, "ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Type: %s\n", task.TriggerType)
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	if task.TriggerType == store.TriggerOnce {
		fmt.Fprintf(&b, "Trigger at: %s\n", t.clk.FormatStamp(tc.Timestamp))
	} else {
		fmt.Fprintf(&b, "Interval: %s\n", formatInterval(tc.Interval))
		fmt.Fprintf(&b, "Next run: %s\n", t.clk.FormatStamp(task.NextRunAt))
	}
	if task.LastRunAt > 0 {
		fmt.Fprintf(&b, "Last run: %s\n", t.clk.FormatStamp(task.LastRunAt))
	}
	fmt.Fprintf(&b, "Message: %s", task.Message)
	return b.String(), nil
}

func (t *ScheduledTaskTool) cancel(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "Error: task_id is required", nil
	}
	task, err := t.sched.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "Task not found: " + id, nil
	}
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	// Cancelling twice is fine from the model's point of view.
	if task.Status != store.TaskCompleted {
		if err := t.sched.Cancel(ctx, id); err != nil {
			return "", fmt.Errorf("scheduled_task: %w", err)
		}
	}
	return "✓ Task cancelled: " + task.Name, nil
}

func (t *ScheduledTaskTool) pause(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "Error: task_id is required", nil
	}
	task, err := t.sched.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "Task not found: " + id, nil
	}
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	if task.Status != store.TaskActive {
		return fmt.Sprintf("Task is not active (current status: %s)", task.Status), nil
	}
	if err := t.sched.Pause(ctx, id); err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	return "✓ Task paused: " + task.Name, nil
}

func (t *ScheduledTaskTool) resume(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "Error: task_id is required", nil
	}
	task, err := t.sched.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "Task not found: " + id, nil
	}
	if err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	if task.Status != store.TaskPaused {
		return fmt.Sprintf("Task is not paused (current status: %s)", task.Status), nil
	}
	if err := t.sched.Resume(ctx, id); err != nil {
		return "", fmt.Errorf("scheduled_task: %w", err)
	}
	return "✓ Task resumed: " + task.Name, nil
}

// parseInterval converts "30s", "5m", "2h", "1d", "1w" or bare seconds to
// a second count.
func parseInterval(expr string) (int64, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return 0, fmt.Errorf("empty interval")
	}
	unit := int64(1)
	num := expr
	switch expr[len(expr)-1] {
	case 's':
		num = expr[:len(expr)-1]
	case 'm':
		unit, num = 60, expr[:len(expr)-1]
	case 'h':
		unit, num = 3600, expr[:len(expr)-1]
	case 'd':
		unit, num = 86400, expr[:len(expr)-1]
	case 'w':
		unit, num = 604800, expr[:len(expr)-1]
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", expr)
	}
	return n * unit, nil
}

// formatInterval renders a second count in the coarsest exact unit.
func formatInterval(seconds int64) string {
	switch {
	case seconds%604800 == 0:
		return fmt.Sprintf("%dw", seconds/604800)
	case seconds%86400 == 0:
		return fmt.Sprintf("%dd", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ tool.InvokableTool = (*ScheduledTaskTool)(nil)
