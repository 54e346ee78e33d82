package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"

	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
)

// webSearchTool adds the stable name the runner keys on.
type webSearchTool struct {
	tool.InvokableTool
}

// Name returns the registration name.
func (*webSearchTool) Name() string { return "web_search" }

// NewWebSearchTool returns the DuckDuckGo-backed web_search tool. It needs
// no API key; enable it with ENABLE_WEB_SEARCH.
func NewWebSearchTool(ctx context.Context) (Tool, error) {
	t, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search",
		ToolDesc:   "Search the web using DuckDuckGo. Returns titles, URLs, and summaries.",
		MaxResults: 10,
		Timeout:    20 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create web search tool: %w", err)
	}
	return &webSearchTool{InvokableTool: t}, nil
}
