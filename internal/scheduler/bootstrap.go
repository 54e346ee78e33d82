package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tailscale/hujson"

	"github.com/seelenmaschine/seele/internal/store"
)

// bootstrapTask is one entry of the bootstrap file.
type bootstrapTask struct {
	Name          string          `json:"name"`
	TriggerType   string          `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	Message       string          `json:"message"`
}

// LoadBootstrapFile adds the tasks declared in path, a JSON array (comments
// and trailing commas tolerated) of {name, trigger_type, trigger_config,
// message} objects. An entry whose name is already present among
// non-completed tasks is skipped, so restarts do not duplicate tasks.
func (s *Scheduler) LoadBootstrapFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse task file: %w", err)
	}
	var entries []bootstrapTask
	if err := json.Unmarshal(std, &entries); err != nil {
		return fmt.Errorf("parse task file: %w", err)
	}

	existing, err := s.store.ListTasks(ctx, store.TaskActive, store.TaskPaused, store.TaskRunning)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[t.Name] = true
	}

	added := 0
	for _, e := range entries {
		if e.Name == "" || names[e.Name] {
			continue
		}
		triggerType := e.TriggerType
		if triggerType == "" {
			triggerType = store.TriggerOnce
		}
		if _, err := s.Add(ctx, e.Name, triggerType, string(e.TriggerConfig), e.Message); err != nil {
			slog.Warn("scheduler: skipping bootstrap task", "name", e.Name, "error", err)
			continue
		}
		names[e.Name] = true
		added++
	}
	if added > 0 {
		slog.Info("scheduler: loaded bootstrap tasks", "path", path, "added", added)
	}
	return nil
}
