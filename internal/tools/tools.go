// Package tools exposes the model-invokable tools and the runner that
// executes their calls during a completion.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is an invokable tool with a stable registration name.
type Tool interface {
	tool.InvokableTool
	Name() string
}

// Runner resolves tool schemas and executes calls by name. Run never
// fails: execution errors come back as readable content so the model can
// react to them.
type Runner struct {
	order []string
	tools map[string]Tool
}

// NewRunner builds a runner over the given tools in registration order.
// Nil tools and duplicate names are skipped.
func NewRunner(ts ...Tool) *Runner {
	r := &Runner{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			continue
		}
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			continue
		}
		r.order = append(r.order, name)
		r.tools[name] = t
	}
	return r
}

// Infos collects the schemas of all registered tools.
func (r *Runner) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Run executes one tool call and returns its result text.
func (r *Runner) Run(ctx context.Context, name, arguments string) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	out, err := t.InvokableRun(ctx, arguments)
	if err != nil {
		slog.Error("tool call failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}
