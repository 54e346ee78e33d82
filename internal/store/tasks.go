package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Scheduled task statuses. A claimed task is "running" until its tick
// resolves it back to active (interval / failed) or completed (once).
const (
	TaskActive    = "active"
	TaskPaused    = "paused"
	TaskRunning   = "running"
	TaskCompleted = "completed"
)

// Trigger types.
const (
	TriggerOnce     = "once"
	TriggerInterval = "interval"
)

// Task is a scheduled proactive message.
type Task struct {
	ID            string
	Name          string
	TriggerType   string
	TriggerConfig string // JSON: {"timestamp": ...} or {"interval": ...}
	Message       string
	CreatedAt     int64
	NextRunAt     int64
	LastRunAt     int64 // zero if never run
	Status        string
}

const taskCols = `task_id, name, trigger_type, trigger_config, message, created_at, next_run_at, last_run_at, status`

// AddTask inserts a new scheduled task.
func (s *Store) AddTask(ctx context.Context, t Task) error {
	if t.TriggerType != TriggerOnce && t.TriggerType != TriggerInterval {
		return fmt.Errorf("add task: invalid trigger type %q", t.TriggerType)
	}
	if t.Status == "" {
		t.Status = TaskActive
	}
	var lastRun any
	if t.LastRunAt > 0 {
		lastRun = t.LastRunAt
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.TriggerType, t.TriggerConfig, t.Message,
		t.CreatedAt, t.NextRunAt, lastRun, t.Status); err != nil {
		return fmt.Errorf("add task: %w", err)
	}
	return nil
}

// GetTask returns a task by id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM scheduled_tasks WHERE task_id = ?`, id)
	t, err := scanTaskRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by next run time, optionally filtered to
// a set of statuses.
func (s *Store) ListTasks(ctx context.Context, statuses ...string) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM scheduled_tasks`
	var args []any
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += ` WHERE status IN (` + placeholders + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY next_run_at ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// UpdateTaskStatus sets a task's status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET status = ? WHERE task_id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireAffected(res, "update task status")
}

// UpdateTaskStatusAndLastRun sets a task's status and records its last run.
func (s *Store) UpdateTaskStatusAndLastRun(ctx context.Context, id, status string, lastRun int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = ?, last_run_at = ?
		WHERE task_id = ?`, status, lastRun, id)
	if err != nil {
		return fmt.Errorf("update task status and last run: %w", err)
	}
	return requireAffected(res, "update task status and last run")
}

// UpdateTaskNextRun reschedules an interval task: records the run, sets the
// next due time and reactivates it.
func (s *Store) UpdateTaskNextRun(ctx context.Context, id string, nextRun, lastRun int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET next_run_at = ?, last_run_at = ?, status = ?
		WHERE task_id = ?`, nextRun, lastRun, TaskActive, id)
	if err != nil {
		return fmt.Errorf("update task next run: %w", err)
	}
	return requireAffected(res, "update task next run")
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_tasks WHERE task_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res, "delete task")
}

// ClaimDueTasks atomically marks every due active task as running and
// returns the claimed tasks. Each due task is handed to exactly one caller.
func (s *Store) ClaimDueTasks(ctx context.Context, now int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE scheduled_tasks SET status = ?
		WHERE status = ? AND next_run_at <= ?
		RETURNING `+taskCols, TaskRunning, TaskActive, now)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("claim due tasks: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	return out, nil
}

func scanTaskRow(scan func(...any) error) (Task, error) {
	var t Task
	var lastRun sql.NullInt64
	if err := scan(&t.ID, &t.Name, &t.TriggerType, &t.TriggerConfig, &t.Message,
		&t.CreatedAt, &t.NextRunAt, &lastRun, &t.Status); err != nil {
		return Task{}, err
	}
	t.LastRunAt = lastRun.Int64
	return t, nil
}
