package store

import (
	"context"
	"errors"
	"testing"
)

func addTestTask(t *testing.T, s *Store, task Task) Task {
	t.Helper()
	if task.TriggerType == "" {
		task.TriggerType = TriggerOnce
	}
	if err := s.AddTask(context.Background(), task); err != nil {
		t.Fatalf("AddTask %s: %v", task.ID, err)
	}
	return task
}

func TestAddTaskValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddTask(ctx, Task{ID: "t-1", Name: "bad", TriggerType: "cron", NextRunAt: 1}); err == nil {
		t.Error("AddTask accepted unknown trigger type")
	}
	if err := s.AddTask(ctx, Task{ID: "t-2", Name: "bad", TriggerType: TriggerOnce, Status: "sleeping", NextRunAt: 1}); err == nil {
		t.Error("AddTask accepted unknown status")
	}

	addTestTask(t, s, Task{ID: "t-3", Name: "reminder", Message: "say hi", NextRunAt: 100})
	got, err := s.GetTask(ctx, "t-3")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != TaskActive {
		t.Errorf("default status = %q, want %q", got.Status, TaskActive)
	}
	if got.LastRunAt != 0 {
		t.Errorf("LastRunAt = %d, want 0 before first run", got.LastRunAt)
	}

	if _, err := s.GetTask(ctx, "no-such-task"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask on missing id = %v, want ErrNotFound", err)
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	s := openTestStore(t)

	addTestTask(t, s, Task{ID: "a", Name: "a", Status: TaskActive, NextRunAt: 300})
	addTestTask(t, s, Task{ID: "b", Name: "b", Status: TaskPaused, NextRunAt: 100})
	addTestTask(t, s, Task{ID: "c", Name: "c", Status: TaskActive, NextRunAt: 200})
	addTestTask(t, s, Task{ID: "d", Name: "d", Status: TaskCompleted, NextRunAt: 50})

	got, err := s.ListTasks(context.Background(), TaskActive, TaskPaused)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Errorf("order = [%s %s %s], want soonest next run first", got[0].ID, got[1].ID, got[2].ID)
	}

	all, err := s.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("unfiltered len = %d, want 4", len(all))
	}
}

func TestClaimDueTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestTask(t, s, Task{ID: "due", Name: "due", NextRunAt: 100})
	addTestTask(t, s, Task{ID: "future", Name: "future", NextRunAt: 9000})
	addTestTask(t, s, Task{ID: "paused", Name: "paused", Status: TaskPaused, NextRunAt: 100})

	claimed, err := s.ClaimDueTasks(ctx, 500)
	if err != nil {
		t.Fatalf("ClaimDueTasks: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "due" {
		t.Fatalf("claimed = %+v, want only the due active task", claimed)
	}
	if claimed[0].Status != TaskRunning {
		t.Errorf("claimed status = %q, want %q", claimed[0].Status, TaskRunning)
	}

	// A second sweep must not hand the same task out again.
	again, err := s.ClaimDueTasks(ctx, 500)
	if err != nil {
		t.Fatalf("ClaimDueTasks again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim returned %d tasks, want 0", len(again))
	}
}

func TestTaskCompletionAndReschedule(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestTask(t, s, Task{ID: "once", Name: "once", NextRunAt: 100})
	addTestTask(t, s, Task{
		ID: "interval", Name: "interval",
		TriggerType:   TriggerInterval,
		TriggerConfig: `{"interval":60}`,
		NextRunAt:     100,
	})

	if _, err := s.ClaimDueTasks(ctx, 200); err != nil {
		t.Fatalf("ClaimDueTasks: %v", err)
	}

	if err := s.UpdateTaskStatusAndLastRun(ctx, "once", TaskCompleted, 200); err != nil {
		t.Fatalf("UpdateTaskStatusAndLastRun: %v", err)
	}
	got, _ := s.GetTask(ctx, "once")
	if got.Status != TaskCompleted || got.LastRunAt != 200 {
		t.Errorf("once task = %+v, want completed with last run 200", got)
	}

	if err := s.UpdateTaskNextRun(ctx, "interval", 260, 200); err != nil {
		t.Fatalf("UpdateTaskNextRun: %v", err)
	}
	got, _ = s.GetTask(ctx, "interval")
	if got.Status != TaskActive || got.NextRunAt != 260 || got.LastRunAt != 200 {
		t.Errorf("interval task = %+v, want active at 260 with last run 200", got)
	}

	// The rescheduled interval task is claimable again once due.
	claimed, err := s.ClaimDueTasks(ctx, 300)
	if err != nil {
		t.Fatalf("ClaimDueTasks reschedule: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "interval" {
		t.Errorf("claimed = %+v, want the rescheduled interval task", claimed)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestTask(t, s, Task{ID: "t", Name: "t", NextRunAt: 100})
	if err := s.UpdateTaskStatus(ctx, "t", TaskPaused); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	got, _ := s.GetTask(ctx, "t")
	if got.Status != TaskPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}

	if err := s.UpdateTaskStatus(ctx, "missing", TaskPaused); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTaskStatus on missing id = %v, want ErrNotFound", err)
	}
}

func TestDeleteTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestTask(t, s, Task{ID: "t", Name: "t", NextRunAt: 100})
	if err := s.DeleteTask(ctx, "t"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, "t"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, "t"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask twice = %v, want ErrNotFound", err)
	}
}
