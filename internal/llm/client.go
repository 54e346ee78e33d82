// Package llm orchestrates chat completions: prompt assembly, the tool
// call loop on the chat model, and the background generations (summaries,
// profile patches) that run on the tool model.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/config"
	"github.com/seelenmaschine/seele/internal/models"
	"github.com/seelenmaschine/seele/internal/profile"
)

const (
	summarizerSystem  = "You are a conversation summarizer."
	patchSystem       = "You generate JSON patches for memory updates."
	fullProfileSystem = "You generate complete seele.json objects for memory updates."
)

// ToolRunner resolves tool schemas and executes tool calls issued by the
// model. Run never fails: execution errors come back as "Error: ..." text
// so the model can read them.
type ToolRunner interface {
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	Run(ctx context.Context, name, arguments string) string
}

// ChatRequest carries everything one completion needs. Context holds the
// in-window history; when CustomMessage is empty its last entry is the
// current user input. CustomMessage substitutes a synthetic request (used
// by scheduled tasks) while keeping the whole Context as history.
type ChatRequest struct {
	Context                []Message
	RetrievedSummaries     []string
	RetrievedConversations []string
	RecentSummaries        []string
	CustomMessage          string
}

// Client drives the two chat models. The chat model answers the user and
// owns the tool loop; the tool model handles summarization and profile
// updates.
type Client struct {
	chatModel model.ToolCallingChatModel
	toolModel model.ToolCallingChatModel
	boundChat model.ToolCallingChatModel

	runner   ToolRunner
	profiles *profile.Store
	clk      *clock.Clock
}

// NewClient builds both models from the provider config.
func NewClient(ctx context.Context, cfg *config.Config, profiles *profile.Store, clk *clock.Clock) (*Client, error) {
	chatModel, err := models.CreateChatModel(ctx, cfg, cfg.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	toolModel, err := models.CreateChatModel(ctx, cfg, cfg.ToolModel)
	if err != nil {
		return nil, fmt.Errorf("create tool model: %w", err)
	}
	return &Client{
		chatModel: chatModel,
		toolModel: toolModel,
		profiles:  profiles,
		clk:       clk,
	}, nil
}

// RegisterTools binds the runner's tools to the chat model. An empty tool
// set unregisters everything.
func (c *Client) RegisterTools(ctx context.Context, runner ToolRunner) error {
	infos, err := runner.Infos(ctx)
	if err != nil {
		return fmt.Errorf("collect tool infos: %w", err)
	}
	if len(infos) == 0 {
		c.boundChat = nil
		c.runner = nil
		return nil
	}
	bound, err := c.chatModel.WithTools(infos)
	if err != nil {
		return fmt.Errorf("bind tools to chat model: %w", err)
	}
	c.boundChat = bound
	c.runner = runner
	slog.Info("tools registered", "count", len(infos))
	return nil
}

// Chat assembles the prompt, generates a completion on the chat model and
// resolves tool calls until the model produces plain text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	msgs := c.buildChatMessages(req)

	resp, err := c.generate(ctx, msgs)
	if err != nil {
		return "", err
	}

	for len(resp.ToolCalls) > 0 {
		if c.runner == nil {
			slog.Warn("model requested tool calls but no runner is registered")
			break
		}
		// Keep the assistant turn verbatim so reasoning content and the
		// call ids survive the round trip.
		msgs = append(msgs, resp)
		for _, call := range resp.ToolCalls {
			slog.Info("executing tool", "tool", call.Function.Name)
			result := c.runner.Run(ctx, call.Function.Name, call.Function.Arguments)
			msgs = append(msgs, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
		resp, err = c.generate(ctx, msgs)
		if err != nil {
			return "", err
		}
	}
	return resp.Content, nil
}

func (c *Client) generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	m := c.chatModel
	if c.boundChat != nil {
		m = c.boundChat
	}
	resp, err := m.Generate(ctx, msgs)
	if err != nil {
		return nil, models.HandleError(err)
	}
	return resp, nil
}

// document loads the profile, falling back to an empty one so a broken
// profile file degrades the prompt instead of failing the completion.
func (c *Client) document() profile.Document {
	doc, err := c.profiles.Document()
	if err != nil {
		slog.Error("load profile document", "error", err)
		return profile.Document{}
	}
	return doc
}

// buildChatMessages lays the prompt out for implicit caching: one large
// stable system block first, then the volatile parts in increasing churn
// order, with the current request emphasized at the very end.
func (c *Client) buildChatMessages(req ChatRequest) []*schema.Message {
	doc := c.document()

	msgs := []*schema.Message{
		{Role: schema.System, Content: SystemPrompt(doc, req.RecentSummaries)},
	}

	history := req.Context
	var current *Message
	if req.CustomMessage == "" && len(history) > 0 {
		current = &history[len(history)-1]
		history = history[:len(history)-1]
	}

	if len(req.Context) > 0 {
		msgs = append(msgs, &schema.Message{Role: schema.System, Content: "BEGINNING OF THE CURRENT CONVERSATION."})
		for _, m := range history {
			msgs = append(msgs, &schema.Message{Role: schemaRole(m.Role), Content: m.Content})
		}
		msgs = append(msgs, &schema.Message{Role: schema.System, Content: "END OF THE CURRENT CONVERSATION."})
	}

	if len(req.RetrievedSummaries) > 0 {
		msgs = append(msgs, &schema.Message{
			Role:    schema.System,
			Content: "## Related Historical Summaries\n\n" + strings.Join(req.RetrievedSummaries, "\n\n"),
		})
	}
	if len(req.RetrievedConversations) > 0 {
		msgs = append(msgs, &schema.Message{
			Role:    schema.System,
			Content: "## Related Historical Conversations\n\n" + strings.Join(req.RetrievedConversations, "\n\n"),
		})
	}

	msgs = append(msgs, &schema.Message{
		Role:    schema.System,
		Content: "END OF ALL CONTEXT.\n\n**Current Time**: " + c.clk.NowStamp(),
	})

	switch {
	case req.CustomMessage != "":
		msgs = append(msgs, &schema.Message{Role: schema.User, Content: emphasize(req.CustomMessage)})
	case current != nil:
		msgs = append(msgs, &schema.Message{Role: schemaRole(current.Role), Content: emphasize(current.Content)})
	}
	return msgs
}

func emphasize(content string) string {
	return "Please respond to the above request based on all context provided.\n\n⚡ [Current Request]\n" + content
}

func schemaRole(role string) schema.RoleType {
	switch role {
	case "assistant":
		return schema.Assistant
	case "system":
		return schema.System
	case "tool":
		return schema.Tool
	default:
		return schema.User
	}
}

// GenerateSummary condenses the given messages into one independent
// summary on the tool model.
func (c *Client) GenerateSummary(ctx context.Context, messages []Message) (string, error) {
	doc := c.document()
	prompt := summaryPrompt(doc.BotName(), doc.UserName(), FormatConversation(messages))
	return c.background(ctx, summarizerSystem, prompt)
}

// GenerateMemoryPatch asks the tool model for an RFC 6902 patch updating
// the profile from the given conversation batch.
func (c *Client) GenerateMemoryPatch(ctx context.Context, messages []Message, currentProfileJSON string, firstTS, lastTS int64) (string, error) {
	doc := c.document()
	ti := timeContext(c.clk, firstTS, lastTS, " like short_term emotions/needs or memorable_events")
	prompt := memoryUpdatePrompt(doc.BotName(), doc.UserName(), FormatConversation(messages), currentProfileJSON, ti)
	return c.background(ctx, patchSystem, prompt)
}

// GenerateFullProfile is the fallback after a failed patch: the tool model
// rewrites the whole document, told what went wrong last time.
func (c *Client) GenerateFullProfile(ctx context.Context, messages []Message, currentProfileJSON, errorMessage string, firstTS, lastTS int64) (string, error) {
	doc := c.document()
	ti := timeContext(c.clk, firstTS, lastTS, "")
	prompt := completeProfilePrompt(doc.BotName(), FormatConversation(messages), currentProfileJSON, errorMessage, ti)
	return c.background(ctx, fullProfileSystem, prompt)
}

func (c *Client) background(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.toolModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return "", models.HandleError(err)
	}
	return resp.Content, nil
}
