package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/scheduler"
	"github.com/seelenmaschine/seele/internal/store"
)

func newTaskToolFixture(t *testing.T) (*ScheduledTaskTool, *scheduler.Scheduler) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chatbot.db"), 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.New("UTC")
	sched := scheduler.New(st, clk, func(context.Context, store.Task) error { return nil })
	return NewScheduledTaskTool(sched, clk), sched
}

// addTask runs an add action and returns the created task id.
func addTask(t *testing.T, tool *ScheduledTaskTool, name, triggerType, timeExpr, message string) string {
	t.Helper()
	input := fmt.Sprintf(`{"action":"add","name":%q,"trigger_type":%q,"time":%q,"message":%q}`,
		name, triggerType, timeExpr, message)
	out, err := tool.InvokableRun(context.Background(), input)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.HasPrefix(out, "✓ Task created (ID: ") {
		t.Fatalf("add output = %q", out)
	}
	id := strings.TrimPrefix(out, "✓ Task created (ID: ")
	return id[:strings.Index(id, ")")]
}

func TestScheduledTaskTool_AddOnce(t *testing.T) {
	tool, sched := newTaskToolFixture(t)
	ctx := context.Background()

	before := time.Now().Unix()
	id := addTask(t, tool, "Water reminder", "once", "in 30m", "Drink water")

	task, err := sched.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.TriggerType != store.TriggerOnce {
		t.Errorf("trigger type = %q", task.TriggerType)
	}
	if task.NextRunAt < before+1800 || task.NextRunAt > time.Now().Unix()+1800 {
		t.Errorf("next run %d not 30 minutes out from %d", task.NextRunAt, before)
	}

	var tc taskTrigger
	if err := json.Unmarshal([]byte(task.TriggerConfig), &tc); err != nil {
		t.Fatalf("trigger config %q: %v", task.TriggerConfig, err)
	}
	if tc.Timestamp != task.NextRunAt {
		t.Errorf("config timestamp %d != next run %d", tc.Timestamp, task.NextRunAt)
	}
}

func TestScheduledTaskTool_AddOnceBareDuration(t *testing.T) {
	tool, sched := newTaskToolFixture(t)

	before := time.Now().Unix()
	id := addTask(t, tool, "Stretch", "once", "30m", "Stand up and stretch")

	task, err := sched.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.NextRunAt < before+1800 || task.NextRunAt > time.Now().Unix()+1800 {
		t.Errorf("bare duration not treated as offset: next run %d from %d", task.NextRunAt, before)
	}
}

func TestScheduledTaskTool_AddInterval(t *testing.T) {
	tool, sched := newTaskToolFixture(t)
	ctx := context.Background()

	input := `{"action":"add","name":"Check-in","trigger_type":"interval","time":"1h","message":"How is it going?"}`
	out, err := tool.InvokableRun(ctx, input)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if !strings.Contains(out, "Type: Recurring") || !strings.Contains(out, "Interval: 1h") {
		t.Errorf("out = %q", out)
	}

	tasks, err := sched.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	if tasks[0].TriggerConfig != `{"interval": 3600}` {
		t.Errorf("trigger config = %q", tasks[0].TriggerConfig)
	}
}

func TestScheduledTaskTool_AddValidation(t *testing.T) {
	tool, _ := newTaskToolFixture(t)
	ctx := context.Background()

	cases := []struct{ input, want string }{
		{
			`{"action":"add","time":"1h","message":"x"}`,
			"Error: trigger_type is required (once or interval)",
		},
		{
			`{"action":"add","trigger_type":"once","message":"x"}`,
			"Error: time is required",
		},
		{
			`{"action":"add","trigger_type":"once","time":"1h"}`,
			"Error: message is required",
		},
		{
			`{"action":"add","trigger_type":"interval","time":"soon","message":"x"}`,
			"Error: Invalid interval 'soon'. Use format like '1h', '30m', '1d'",
		},
		{
			`{"action":"add","trigger_type":"once","time":"whenever","message":"x"}`,
			"Error: Could not parse time expression 'whenever'",
		},
		{
			`{"action":"nuke"}`,
			"Unknown action: nuke",
		},
	}
	for _, c := range cases {
		out, err := tool.InvokableRun(ctx, c.input)
		if err != nil {
			t.Fatalf("InvokableRun(%s): %v", c.input, err)
		}
		if out != c.want {
			t.Errorf("InvokableRun(%s) = %q, want %q", c.input, out, c.want)
		}
	}
}

func TestScheduledTaskTool_ListAndGet(t *testing.T) {
	tool, _ := newTaskToolFixture(t)
	ctx := context.Background()

	out, err := tool.InvokableRun(ctx, `{"action":"list"}`)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "No active tasks found." {
		t.Errorf("empty list = %q", out)
	}

	id := addTask(t, tool, "Daily greeting", "interval", "1d", "Good morning!")
	addTask(t, tool, "Dentist", "once", "in 2h", "Dentist at four")

	out, err = tool.InvokableRun(ctx, `{"action":"list"}`)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, "Active tasks (2):") {
		t.Errorf("list header:\n%s", out)
	}
	if !strings.Contains(out, "• Daily greeting") || !strings.Contains(out, "• Dentist") {
		t.Errorf("list entries:\n%s", out)
	}
	if !strings.Contains(out, "Interval: 1d") {
		t.Errorf("interval formatting:\n%s", out)
	}

	out, err = tool.InvokableRun(ctx, fmt.Sprintf(`{"action":"get","task_id":%q}`, id))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, want := range []string{"Task: Daily greeting", "Status: active", "Interval: 1d", "Message: Good morning!"} {
		if !strings.Contains(out, want) {
			t.Errorf("get output missing %q:\n%s", want, out)
		}
	}

	out, err = tool.InvokableRun(ctx, `{"action":"get","task_id":"nope"}`)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if out != "Task not found: nope" {
		t.Errorf("get missing = %q", out)
	}
}

func TestScheduledTaskTool_PauseResumeCancel(t *testing.T) {
	tool, _ := newTaskToolFixture(t)
	ctx := context.Background()

	id := addTask(t, tool, "Check-in", "interval", "1h", "ping")
	run := func(action string) string {
		t.Helper()
		out, err := tool.InvokableRun(ctx, fmt.Sprintf(`{"action":%q,"task_id":%q}`, action, id))
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		return out
	}

	if out := run("pause"); out != "✓ Task paused: Check-in" {
		t.Errorf("pause = %q", out)
	}
	if out := run("pause"); out != "Task is not active (current status: paused)" {
		t.Errorf("second pause = %q", out)
	}
	if out := run("resume"); out != "✓ Task resumed: Check-in" {
		t.Errorf("resume = %q", out)
	}
	if out := run("resume"); out != "Task is not paused (current status: active)" {
		t.Errorf("second resume = %q", out)
	}
	if out := run("cancel"); out != "✓ Task cancelled: Check-in" {
		t.Errorf("cancel = %q", out)
	}
	// Cancelling again stays calm.
	if out := run("cancel"); out != "✓ Task cancelled: Check-in" {
		t.Errorf("second cancel = %q", out)
	}
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "30s", want: 30},
		{in: "5m", want: 300},
		{in: "2h", want: 7200},
		{in: "1d", want: 86400},
		{in: "1w", want: 604800},
		{in: "90", want: 90},
		{in: " 1H ", want: 3600},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseInterval(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseInterval(%q) = %d, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseInterval(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseInterval(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{604800, "1w"},
		{86400, "1d"},
		{7200, "2h"},
		{300, "5m"},
		{90, "90s"},
		{45, "45s"},
	}
	for _, c := range cases {
		if got := formatInterval(c.in); got != c.want {
			t.Errorf("formatInterval(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
