package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/store"
)

// defaultSearchLimit applies when the model omits limit.
const defaultSearchLimit = 10

const searchDisabledNotice = "Memory search is disabled during response generation to prevent recursion"

const ftsExamples = "Valid examples:\n- coffee AND morning\n- tea OR coffee\n- \"exact phrase\"\n- (tea OR coffee) AND morning"

const memorySearchDesc = `Search your long-term memory (conversation history and summaries) using keywords and filters.

WHEN TO USE:
- User asks about past conversations, previous topics, or things mentioned before
- You need to recall specific facts, preferences, or events from history
- The conversation references something from earlier sessions
- User asks "do you remember...", "what did we talk about...", "when did I say..."
- You need context from past interactions to provide accurate response

QUERY SYNTAX (FTS5):
- Single keyword: coffee
- AND (both required): coffee AND morning
- OR (either acceptable): tea OR coffee
- Exact phrase: "morning routine"
- Exclude: coffee NOT decaf
- Grouping: (tea OR coffee) AND morning

BEST PRACTICES:
1. Use specific keywords relevant to the topic
2. Use the same language as the user's conversation (e.g., if user speaks Chinese, search with Chinese keywords)
3. Combine keywords with AND for precise results
4. Use time filters when timeframe is known
5. Use role filter to find specific speaker's messages
6. Start with broader keywords, then narrow down if needed`

// MemorySearchTool lets the model query its long-term memory with FTS5
// keywords plus role and time filters. The active session is excluded so
// results never echo the conversation in progress.
type MemorySearchTool struct {
	store   *store.Store
	clk     *clock.Clock
	session func() int64

	mu       sync.Mutex
	disabled bool
}

// NewMemorySearchTool builds the search_memories tool. session reports the
// active session id at call time, so session switches need no re-wiring.
func NewMemorySearchTool(st *store.Store, clk *clock.Clock, session func() int64) *MemorySearchTool {
	return &MemorySearchTool{store: st, clk: clk, session: session}
}

// Name returns the registration name.
func (t *MemorySearchTool) Name() string { return "search_memories" }

// Disable makes searches return a notice instead of results. The driver
// disables the tool while a response is being committed so summarization
// prompts cannot recurse into it.
func (t *MemorySearchTool) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = true
}

// Enable re-arms the tool for the next completion.
func (t *MemorySearchTool) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = false
}

func (t *MemorySearchTool) isDisabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}

// Info returns the tool schema.
func (t *MemorySearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: memorySearchDesc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type: schema.String,
				Desc: "Search keywords using FTS5 syntax. Examples: \"coffee\", \"coffee AND morning\", \"tea OR coffee\", '\"morning routine\"' (exact phrase), \"coffee NOT decaf\", \"(tea OR coffee) AND morning\". Leave empty to search using only filters (role, time range).",
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of results to return (default: 10). Increase for broader searches, decrease for specific queries.",
			},
			"role": {
				Type: schema.String,
				Enum: []string{"user", "assistant"},
				Desc: "Filter by speaker role. Use 'user' to search only user's messages, 'assistant' to search only your own responses.",
			},
			"time_period": {
				Type: schema.String,
				Enum: []string{"last_day", "last_week", "last_month", "last_year"},
				Desc: "Quick time filter for recent conversations. Use this when user mentions vague timeframes like 'recently', 'lately', 'the other day'.",
			},
			"start_date": {
				Type: schema.String,
				Desc: "Filter conversations from this date onwards. Format: YYYY-MM-DD or YYYY-MM-DD HH:MM:SS. Use when user specifies a date like 'since January', 'after last month'.",
			},
			"end_date": {
				Type: schema.String,
				Desc: "Filter conversations until this date. Format: YYYY-MM-DD or YYYY-MM-DD HH:MM:SS. Use when user specifies a date range or 'before March'.",
			},
		}),
	}, nil
}

type memorySearchInput struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	Role       string `json:"role"`
	TimePeriod string `json:"time_period"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// InvokableRun executes a keyword search over summaries and conversations.
func (t *MemorySearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	if t.isDisabled() {
		return searchDisabledNotice, nil
	}

	var in memorySearchInput
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
			return "", fmt.Errorf("search_memories: parse input: %w", err)
		}
	}

	query := quoteBareDates(in.Query)
	if query != "" {
		if err := validateQuery(query); err != nil {
			return fmt.Sprintf("Invalid query syntax: %v\n\n%s", err, ftsExamples), nil
		}
	}

	var startTS, endTS int64
	now := t.clk.Now()
	switch in.TimePeriod {
	case "last_day":
		startTS = now.Add(-24 * time.Hour).Unix()
	case "last_week":
		startTS = now.Add(-7 * 24 * time.Hour).Unix()
	case "last_month":
		startTS = now.Add(-30 * 24 * time.Hour).Unix()
	case "last_year":
		startTS = now.Add(-365 * 24 * time.Hour).Unix()
	}

	// Explicit dates override the preset.
	if in.StartDate != "" {
		ts, err := t.parseDate(in.StartDate, false)
		if err != nil {
			return fmt.Sprintf("Invalid start_date format: %s. Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", in.StartDate), nil
		}
		startTS = ts
	}
	if in.EndDate != "" {
		ts, err := t.parseDate(in.EndDate, true)
		if err != nil {
			return fmt.Sprintf("Invalid end_date format: %s. Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", in.EndDate), nil
		}
		endTS = ts
	}

	if query == "" && in.Role == "" && startTS == 0 && endTS == 0 {
		return "Please provide at least one search criterion (query, role, or time filter)", nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	half := limit / 2
	if half < 1 {
		half = 1
	}

	exclude := t.session()
	sums, err := t.store.SearchSummariesByKeyword(ctx, store.SummaryKeywordFilter{
		Query:          query,
		StartTS:        startTS,
		EndTS:          endTS,
		ExcludeSession: exclude,
		Limit:          half,
	})
	if err != nil {
		if isFTSSyntaxError(err) {
			return fmt.Sprintf("FTS5 query syntax error: %v\n\n%s", err, ftsExamples), nil
		}
		return "", fmt.Errorf("search_memories: %w", err)
	}

	convs, err := t.store.SearchConversationsByKeyword(ctx, store.ConversationKeywordFilter{
		Query:          query,
		Role:           in.Role,
		StartTS:        startTS,
		EndTS:          endTS,
		ExcludeSession: exclude,
		Limit:          half,
	})
	if err != nil {
		if isFTSSyntaxError(err) {
			return fmt.Sprintf("FTS5 query syntax error: %v\n\n%s", err, ftsExamples), nil
		}
		return "", fmt.Errorf("search_memories: %w", err)
	}

	if len(sums) == 0 && len(convs) == 0 {
		return "No relevant memories found matching the search criteria", nil
	}

	var lines []string
	if criteria := describeCriteria(query, in); len(criteria) > 0 {
		lines = append(lines, "Search criteria: "+strings.Join(criteria, ", ")+"\n")
	}
	if len(sums) > 0 {
		lines = append(lines, "== Related Summaries ==")
		for _, sm := range sums {
			lines = append(lines, fmt.Sprintf("[%s] %s", t.clk.FormatStamp(sm.LastTimestamp), sm.Summary))
		}
	}
	if len(convs) > 0 {
		if n := len(lines); n > 0 && !strings.HasPrefix(lines[n-1], "==") {
			lines = append(lines, "")
		}
		lines = append(lines, "== Related Conversations ==")
		for _, cv := range convs {
			role := "Assistant"
			if cv.Role == "user" {
				role = "User"
			}
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", t.clk.FormatStamp(cv.Timestamp), role, cv.Text))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func describeCriteria(query string, in memorySearchInput) []string {
	var criteria []string
	if query != "" {
		criteria = append(criteria, fmt.Sprintf("keywords: '%s'", query))
	}
	if in.Role != "" {
		criteria = append(criteria, "role: "+in.Role)
	}
	switch {
	case in.TimePeriod != "":
		criteria = append(criteria, "time: "+in.TimePeriod)
	case in.StartDate != "" && in.EndDate != "":
		criteria = append(criteria, fmt.Sprintf("time: %s to %s", in.StartDate, in.EndDate))
	case in.StartDate != "":
		criteria = append(criteria, "time: from "+in.StartDate)
	case in.EndDate != "":
		criteria = append(criteria, "time: until "+in.EndDate)
	}
	return criteria
}

// parseDate resolves YYYY-MM-DD[ HH:MM:SS] in the clock's timezone. A
// date-only end bound extends to the last second of that day.
func (t *MemorySearchTool) parseDate(s string, endOfDay bool) (int64, error) {
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, t.clk.Location()); err == nil {
		return ts.Unix(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, t.clk.Location())
	if err != nil {
		return 0, err
	}
	if endOfDay {
		day = day.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return day.Unix(), nil
}

var fts5Operators = map[string]bool{"AND": true, "OR": true, "NOT": true}

// validateQuery rejects queries FTS5 would choke on, with a message the
// model can act on.
func validateQuery(q string) error {
	var problems []string
	if strings.Count(q, `"`)%2 != 0 {
		problems = append(problems, "Unmatched quotes in query")
	}
	if strings.Count(q, "(") != strings.Count(q, ")") {
		problems = append(problems, "Unmatched parentheses in query")
	}
	if words := strings.Fields(q); len(words) > 0 {
		if fts5Operators[words[0]] {
			problems = append(problems, fmt.Sprintf("Query cannot start with operator '%s'", words[0]))
		}
		if last := words[len(words)-1]; fts5Operators[last] {
			problems = append(problems, fmt.Sprintf("Query cannot end with operator '%s'", last))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

var bareDateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

// quoteBareDates wraps unquoted YYYY-MM-DD tokens in quotes: FTS5 would
// otherwise read the dashes as column syntax and fail.
func quoteBareDates(q string) string {
	if q == "" {
		return q
	}
	parts := strings.Split(q, `"`)
	for i := 0; i < len(parts); i += 2 {
		parts[i] = bareDateRe.ReplaceAllString(parts[i], `"$1"`)
	}
	return strings.Join(parts, `"`)
}

func isFTSSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax")
}

var _ tool.InvokableTool = (*MemorySearchTool)(nil)
