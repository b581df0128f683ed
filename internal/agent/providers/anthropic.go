package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string

	// MaxTokens caps output tokens when the request sets none. Default: 4096.
	MaxTokens int
}

// AnthropicProvider streams messages through the Anthropic API. A tool_use
// content block maps onto one tool call item keyed by its block index.
type AnthropicProvider struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropicProvider creates a provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(options...),
		config: config,
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Stream starts a streaming message.
func (p *AnthropicProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.ProviderEvent, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Messages.NewStreaming(ctx, params)
	events := make(chan agent.ProviderEvent)

	go func() {
		defer close(events)
		defer stream.Close()

		send := func(ev agent.ProviderEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		type toolBlock struct {
			itemID string
			callID string
			name   string
			args   strings.Builder
		}
		tools := make(map[int64]*toolBlock)
		var text strings.Builder
		responseID := ""
		model := ""

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				responseID = start.Message.ID
				model = string(start.Message.Model)
				if !send(agent.ProviderEvent{Type: agent.EventResponseCreated, ResponseID: responseID}) {
					return
				}
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type != "tool_use" {
					continue
				}
				toolUse := block.AsToolUse()
				tb := &toolBlock{
					itemID: fmt.Sprintf("%s_block_%d", responseID, event.Index),
					callID: toolUse.ID,
					name:   toolUse.Name,
				}
				tools[event.Index] = tb
				if !send(agent.ProviderEvent{Type: agent.EventToolCallAdded, ItemID: tb.itemID, CallID: tb.callID, Name: tb.name}) {
					return
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text == "" {
						continue
					}
					text.WriteString(delta.Text)
					if !send(agent.ProviderEvent{Type: agent.EventOutputTextDelta, Delta: delta.Text}) {
						return
					}
				case "input_json_delta":
					tb, ok := tools[event.Index]
					if !ok || delta.PartialJSON == "" {
						continue
					}
					tb.args.WriteString(delta.PartialJSON)
					if !send(agent.ProviderEvent{Type: agent.EventToolCallArgsDelta, ItemID: tb.itemID, Delta: delta.PartialJSON}) {
						return
					}
				}
			case "content_block_stop":
				tb, ok := tools[event.Index]
				if !ok {
					continue
				}
				delete(tools, event.Index)
				if !send(agent.ProviderEvent{
					Type:      agent.EventToolCallDone,
					ItemID:    tb.itemID,
					CallID:    tb.callID,
					Name:      tb.name,
					Arguments: tb.args.String(),
				}) {
					return
				}
			case "message_stop":
				send(agent.ProviderEvent{
					Type:     agent.EventResponseCompleted,
					Response: &agent.CompletedResponse{ID: responseID, Model: model, Text: text.String()},
				})
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(agent.ProviderEvent{Type: agent.EventProviderError, Err: fmt.Errorf("anthropic: %w", err)})
			return
		}
		send(agent.ProviderEvent{
			Type:     agent.EventResponseCompleted,
			Response: &agent.CompletedResponse{ID: responseID, Model: model, Text: text.String()},
		})
	}()

	return events, nil
}

// Complete runs a non-streaming message request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletedResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	out := &agent.CompletedResponse{ID: msg.ID, Model: string(msg.Model)}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
				CallID:    block.ID,
				ItemID:    block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Text = text.String()
	return out, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	messages, err := convertToAnthropicMessages(req.Input)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.Instructions}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertToAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// convertToAnthropicMessages groups transcript items into alternating user
// and assistant messages. Function calls become tool_use blocks on the
// assistant side and their outputs tool_result blocks on the user side.
func convertToAnthropicMessages(input []agent.InputItem) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var blocks []anthropic.ContentBlockParamUnion
	role := ""

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	switchTo := func(r string) {
		if r != role {
			flush()
			role = r
		}
	}

	for _, item := range input {
		switch item.Type {
		case agent.InputFunctionCall:
			var args map[string]any
			if item.Arguments != "" {
				if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
					args = map[string]any{}
				}
			}
			if args == nil {
				args = map[string]any{}
			}
			switchTo("assistant")
			blocks = append(blocks, anthropic.NewToolUseBlock(item.CallID, args, item.Name))
		case agent.InputFunctionCallOutput:
			switchTo("user")
			blocks = append(blocks, anthropic.NewToolResultBlock(item.CallID, item.Output, false))
		default:
			if item.Content == "" {
				continue
			}
			r := "user"
			if item.Role == "assistant" {
				r = "assistant"
			}
			switchTo(r)
			blocks = append(blocks, anthropic.NewTextBlock(item.Content))
		}
	}
	flush()
	return out, nil
}

func convertToAnthropicTools(defs []toolargs.Definition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", def.Name)
		}
		param.OfTool.Description = anthropic.String(def.Description)
		out = append(out, param)
	}
	return out, nil
}
