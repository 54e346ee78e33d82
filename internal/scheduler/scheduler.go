// Package scheduler fires persisted tasks at their due time and hands each
// one to a delivery callback exactly once. Tasks live in the store; a claim
// flips a due task from active to running so concurrent pollers never
// deliver the same task twice.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/store"
)

// tickInterval is how often the loop polls for due tasks.
const tickInterval = 10 * time.Second

// defaultIntervalSecs applies when an interval task's trigger config does
// not carry an interval.
const defaultIntervalSecs = 3600

// Callback delivers a due task. A non-nil error re-activates the task so
// the next tick retries it.
type Callback func(ctx context.Context, task store.Task) error

// triggerConfig is the parsed trigger_config JSON. Once tasks read
// timestamp, interval tasks read interval (seconds).
type triggerConfig struct {
	Timestamp int64 `json:"timestamp"`
	Interval  int64 `json:"interval"`
}

// Scheduler polls the task table and fires due tasks.
type Scheduler struct {
	store    *store.Store
	clk      *clock.Clock
	callback Callback

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New returns a scheduler over st that delivers due tasks through cb.
func New(st *store.Store, clk *clock.Clock, cb Callback) *Scheduler {
	return &Scheduler{
		store:    st,
		clk:      clk,
		callback: cb,
		done:     make(chan struct{}),
	}
}

// SetCallback replaces the delivery callback. Transports that need the
// scheduler while assembling their own delivery path (the task tool holds
// the scheduler, the transport holds the driver) construct first and bind
// here before Start.
func (s *Scheduler) SetCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Start launches the polling loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
	slog.Info("scheduler started")
}

// Stop halts the polling loop. A task already claimed finishes its delivery.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	slog.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	ctx := context.Background()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.RunDue(ctx, now.Unix())
		}
	}
}

// RunDue claims every task due at now and fires it. The loop calls this on
// each tick; tests and one-shot transports may call it directly.
func (s *Scheduler) RunDue(ctx context.Context, now int64) {
	tasks, err := s.store.ClaimDueTasks(ctx, now)
	if err != nil {
		slog.Error("scheduler: claim due tasks", "error", err)
		return
	}
	for _, t := range tasks {
		s.execute(ctx, t)
	}
}

func (s *Scheduler) execute(ctx context.Context, t store.Task) {
	slog.Info("scheduler: executing task", "task_id", t.ID, "name", t.Name)

	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		cb = func(context.Context, store.Task) error {
			return fmt.Errorf("no delivery callback bound")
		}
	}

	if err := cb(ctx, t); err != nil {
		slog.Error("scheduler: task delivery failed", "task_id", t.ID, "error", err)
		if err := s.store.UpdateTaskStatus(ctx, t.ID, store.TaskActive); err != nil {
			slog.Error("scheduler: re-activate task", "task_id", t.ID, "error", err)
		}
		return
	}

	ranAt := s.clk.Now().Unix()
	switch t.TriggerType {
	case store.TriggerOnce:
		if err := s.store.UpdateTaskStatusAndLastRun(ctx, t.ID, store.TaskCompleted, ranAt); err != nil {
			slog.Error("scheduler: complete task", "task_id", t.ID, "error", err)
			return
		}
		slog.Info("scheduler: one-time task completed", "task_id", t.ID)
	case store.TriggerInterval:
		next := ranAt + s.interval(t)
		if err := s.store.UpdateTaskNextRun(ctx, t.ID, next, ranAt); err != nil {
			slog.Error("scheduler: reschedule task", "task_id", t.ID, "error", err)
			return
		}
		slog.Info("scheduler: interval task rescheduled", "task_id", t.ID, "next_run", next)
	}
}

func (s *Scheduler) interval(t store.Task) int64 {
	var tc triggerConfig
	if err := json.Unmarshal([]byte(t.TriggerConfig), &tc); err != nil {
		slog.Warn("scheduler: invalid trigger config, using default interval",
			"task_id", t.ID, "error", err)
	}
	if tc.Interval <= 0 {
		return defaultIntervalSecs
	}
	return tc.Interval
}

// Add registers a new task and returns it. cfgJSON may be empty; for once
// tasks it may carry a timestamp (default: due immediately), for interval
// tasks an interval in seconds (default one hour, first run one interval
// from now).
func (s *Scheduler) Add(ctx context.Context, name, triggerType, cfgJSON, message string) (store.Task, error) {
	if triggerType != store.TriggerOnce && triggerType != store.TriggerInterval {
		return store.Task{}, fmt.Errorf("add task: invalid trigger type %q", triggerType)
	}
	if strings.TrimSpace(cfgJSON) == "" {
		cfgJSON = "{}"
	}
	var tc triggerConfig
	if err := json.Unmarshal([]byte(cfgJSON), &tc); err != nil {
		return store.Task{}, fmt.Errorf("add task: parse trigger config: %w", err)
	}

	now := s.clk.Now().Unix()
	nextRun := now
	switch triggerType {
	case store.TriggerOnce:
		if tc.Timestamp > 0 {
			nextRun = tc.Timestamp
		}
	case store.TriggerInterval:
		iv := tc.Interval
		if iv <= 0 {
			iv = defaultIntervalSecs
		}
		nextRun = now + iv
	}

	t := store.Task{
		ID:            uuid.New().String(),
		Name:          name,
		TriggerType:   triggerType,
		TriggerConfig: cfgJSON,
		Message:       message,
		CreatedAt:     now,
		NextRunAt:     nextRun,
		Status:        store.TaskActive,
	}
	if err := s.store.AddTask(ctx, t); err != nil {
		return store.Task{}, err
	}
	slog.Info("scheduler: added task", "task_id", t.ID, "name", name, "trigger", triggerType)
	return t, nil
}

// Get returns a task by id.
func (s *Scheduler) Get(ctx context.Context, id string) (store.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks, optionally filtered by status.
func (s *Scheduler) List(ctx context.Context, statuses ...string) ([]store.Task, error) {
	return s.store.ListTasks(ctx, statuses...)
}

// Pause suspends an active task.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != store.TaskActive {
		return fmt.Errorf("pause task: task %s is %s, only active tasks can be paused", id, t.Status)
	}
	if err := s.store.UpdateTaskStatus(ctx, id, store.TaskPaused); err != nil {
		return err
	}
	slog.Info("scheduler: paused task", "task_id", id)
	return nil
}

// Resume re-activates a paused task.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != store.TaskPaused {
		return fmt.Errorf("resume task: task %s is %s, only paused tasks can be resumed", id, t.Status)
	}
	if err := s.store.UpdateTaskStatus(ctx, id, store.TaskActive); err != nil {
		return err
	}
	slog.Info("scheduler: resumed task", "task_id", id)
	return nil
}

// Cancel marks a task completed so it never fires again.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == store.TaskCompleted {
		return fmt.Errorf("cancel task: task %s is already completed", id)
	}
	if err := s.store.UpdateTaskStatus(ctx, id, store.TaskCompleted); err != nil {
		return err
	}
	slog.Info("scheduler: cancelled task", "task_id", id)
	return nil
}
