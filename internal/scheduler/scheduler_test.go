package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/store"
)

func openTaskStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chatbot.db"), 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestScheduler(t *testing.T, cb Callback) (*Scheduler, *store.Store) {
	t.Helper()
	st := openTaskStore(t)
	if cb == nil {
		cb = func(context.Context, store.Task) error { return nil }
	}
	return New(st, clock.New("UTC"), cb), st
}

func TestAddOnceTaskDefaults(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	before := time.Now().Unix()
	task, err := s.Add(ctx, "reminder", store.TriggerOnce, "", "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected a generated task id")
	}
	if task.Status != store.TaskActive {
		t.Errorf("status = %q, want active", task.Status)
	}
	if task.TriggerConfig != "{}" {
		t.Errorf("trigger config = %q, want {}", task.TriggerConfig)
	}
	if task.NextRunAt < before || task.NextRunAt > time.Now().Unix() {
		t.Errorf("next run %d not in [%d, now]", task.NextRunAt, before)
	}
}

func TestAddOnceTaskWithTimestamp(t *testing.T) {
	s, _ := newTestScheduler(t, nil)

	task, err := s.Add(context.Background(), "reminder", store.TriggerOnce,
		`{"timestamp": 9999999999}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.NextRunAt != 9999999999 {
		t.Errorf("next run = %d, want 9999999999", task.NextRunAt)
	}
}

func TestAddIntervalTask(t *testing.T) {
	s, _ := newTestScheduler(t, nil)

	before := time.Now().Unix()
	task, err := s.Add(context.Background(), "check-in", store.TriggerInterval,
		`{"interval": 60}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.NextRunAt < before+60 || task.NextRunAt > time.Now().Unix()+60 {
		t.Errorf("next run %d not one minute out from %d", task.NextRunAt, before)
	}
}

func TestAddIntervalTaskDefaultInterval(t *testing.T) {
	s, _ := newTestScheduler(t, nil)

	before := time.Now().Unix()
	task, err := s.Add(context.Background(), "check-in", store.TriggerInterval, "{}", "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.NextRunAt < before+3600 || task.NextRunAt > time.Now().Unix()+3600 {
		t.Errorf("next run %d not one hour out from %d", task.NextRunAt, before)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "bad", "hourly", "", "ping"); err == nil {
		t.Error("expected error for unknown trigger type")
	}
	if _, err := s.Add(ctx, "bad", store.TriggerOnce, "{not json", "ping"); err == nil {
		t.Error("expected error for invalid trigger config")
	}
}

func TestRunDueCompletesOnceTask(t *testing.T) {
	var got []string
	s, _ := newTestScheduler(t, func(_ context.Context, task store.Task) error {
		got = append(got, task.Message)
		return nil
	})
	ctx := context.Background()

	task, err := s.Add(ctx, "reminder", store.TriggerOnce, `{"timestamp": 100}`, "drink water")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.RunDue(ctx, time.Now().Unix())
	if len(got) != 1 || got[0] != "drink water" {
		t.Fatalf("delivered = %v, want one delivery", got)
	}

	after, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != store.TaskCompleted {
		t.Errorf("status = %q, want completed", after.Status)
	}
	if after.LastRunAt == 0 {
		t.Error("expected last run to be recorded")
	}

	s.RunDue(ctx, time.Now().Unix())
	if len(got) != 1 {
		t.Errorf("completed task delivered again: %v", got)
	}
}

func TestRunDueReschedulesIntervalTask(t *testing.T) {
	var calls int
	s, st := newTestScheduler(t, func(context.Context, store.Task) error {
		calls++
		return nil
	})
	ctx := context.Background()

	task, err := s.Add(ctx, "check-in", store.TriggerInterval, `{"interval": 60}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.UpdateTaskNextRun(ctx, task.ID, 100, 0); err != nil {
		t.Fatalf("UpdateTaskNextRun: %v", err)
	}

	before := time.Now().Unix()
	s.RunDue(ctx, before)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	after, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != store.TaskActive {
		t.Errorf("status = %q, want active", after.Status)
	}
	if after.NextRunAt < before+60 || after.NextRunAt > time.Now().Unix()+60 {
		t.Errorf("next run %d not one minute out from %d", after.NextRunAt, before)
	}
	if after.LastRunAt < before {
		t.Errorf("last run %d predates the delivery at %d", after.LastRunAt, before)
	}
}

func TestRunDueRetriesFailedDelivery(t *testing.T) {
	var calls int
	s, _ := newTestScheduler(t, func(context.Context, store.Task) error {
		calls++
		if calls == 1 {
			return errors.New("transport down")
		}
		return nil
	})
	ctx := context.Background()

	task, err := s.Add(ctx, "reminder", store.TriggerOnce, `{"timestamp": 100}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.RunDue(ctx, time.Now().Unix())
	mid, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if mid.Status != store.TaskActive {
		t.Fatalf("status after failure = %q, want active", mid.Status)
	}
	if mid.LastRunAt != 0 {
		t.Errorf("failed delivery recorded a last run: %d", mid.LastRunAt)
	}

	s.RunDue(ctx, time.Now().Unix())
	if calls != 2 {
		t.Fatalf("calls = %d, want retry to deliver", calls)
	}
	after, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != store.TaskCompleted {
		t.Errorf("status after retry = %q, want completed", after.Status)
	}
}

func TestClaimedTaskInvisibleToSecondPoller(t *testing.T) {
	st := openTaskStore(t)
	clk := clock.New("UTC")
	ctx := context.Background()

	var nested int
	other := New(st, clk, func(context.Context, store.Task) error {
		nested++
		return nil
	})
	var delivered int
	s := New(st, clk, func(ctx context.Context, _ store.Task) error {
		delivered++
		other.RunDue(ctx, time.Now().Unix())
		return nil
	})

	if _, err := s.Add(ctx, "reminder", store.TriggerOnce, `{"timestamp": 100}`, "ping"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.RunDue(ctx, time.Now().Unix())
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if nested != 0 {
		t.Errorf("second poller delivered a claimed task %d times", nested)
	}
}

func TestPauseResumeCancel(t *testing.T) {
	var calls int
	s, st := newTestScheduler(t, func(context.Context, store.Task) error {
		calls++
		return nil
	})
	ctx := context.Background()

	task, err := s.Add(ctx, "check-in", store.TriggerInterval, `{"interval": 60}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Pause(ctx, task.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Pause(ctx, task.ID); err == nil {
		t.Error("expected error pausing a paused task")
	}

	// A paused task is never claimed, even when due.
	if err := st.UpdateTaskNextRun(ctx, task.ID, 100, 0); err != nil {
		t.Fatalf("UpdateTaskNextRun: %v", err)
	}
	if err := st.UpdateTaskStatus(ctx, task.ID, store.TaskPaused); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	s.RunDue(ctx, time.Now().Unix())
	if calls != 0 {
		t.Fatalf("paused task delivered %d times", calls)
	}

	if err := s.Resume(ctx, task.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := s.Resume(ctx, task.ID); err == nil {
		t.Error("expected error resuming an active task")
	}
	s.RunDue(ctx, time.Now().Unix())
	if calls != 1 {
		t.Fatalf("resumed task delivered %d times, want 1", calls)
	}

	if err := s.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.TaskCompleted {
		t.Errorf("status after cancel = %q, want completed", got.Status)
	}
	if err := s.Cancel(ctx, task.ID); err == nil {
		t.Error("expected error cancelling a completed task")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	s.Start()
	s.Start() // idempotent
	s.Stop()
	s.Stop() // idempotent
}

func TestSetCallbackBindsDelivery(t *testing.T) {
	st := openTaskStore(t)
	s := New(st, clock.New("UTC"), nil)
	ctx := context.Background()

	task, err := s.Add(ctx, "reminder", store.TriggerOnce, `{"timestamp": 100}`, "ping")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Unbound delivery counts as a failure: the task stays claimable.
	s.RunDue(ctx, time.Now().Unix())
	mid, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if mid.Status != store.TaskActive {
		t.Fatalf("status without callback = %q, want active", mid.Status)
	}

	var got []string
	s.SetCallback(func(_ context.Context, task store.Task) error {
		got = append(got, task.Message)
		return nil
	})
	s.RunDue(ctx, time.Now().Unix())
	if len(got) != 1 || got[0] != "ping" {
		t.Fatalf("delivered = %v, want the pending task", got)
	}
}

func TestLoadBootstrapFile(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "scheduled_tasks.json")
	content := `[
		// Morning greeting, fires every day.
		{
			"name": "morning-greeting",
			"trigger_type": "interval",
			"trigger_config": {"interval": 86400},
			"message": "say good morning",
		},
		{
			"name": "welcome",
			"message": "introduce yourself",
		},
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := s.Add(ctx, "welcome", store.TriggerOnce, "", "already here"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.LoadBootstrapFile(ctx, path); err != nil {
		t.Fatalf("LoadBootstrapFile: %v", err)
	}

	tasks, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2: %+v", len(tasks), tasks)
	}
	byName := make(map[string]store.Task, len(tasks))
	for _, task := range tasks {
		byName[task.Name] = task
	}
	if got := byName["morning-greeting"]; got.TriggerType != store.TriggerInterval {
		t.Errorf("morning-greeting trigger = %q, want interval", got.TriggerType)
	}
	if got := byName["welcome"]; got.Message != "already here" {
		t.Errorf("welcome message = %q, existing task was replaced", got.Message)
	}

	// Loading again adds nothing.
	if err := s.LoadBootstrapFile(ctx, path); err != nil {
		t.Fatalf("LoadBootstrapFile again: %v", err)
	}
	tasks, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("reload grew the task list to %d", len(tasks))
	}
}

func TestLoadBootstrapFileMissing(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	err := s.LoadBootstrapFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped fs.ErrNotExist", err)
	}
}
