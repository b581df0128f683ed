// Package providers adapts hosted model APIs to the agent.Provider interface.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string

	// MaxRetries bounds attempts to open a stream. Default: 3.
	MaxRetries int

	// RetryDelay is the first backoff delay between attempts. Default: 1s.
	RetryDelay time.Duration
}

// OpenAIProvider streams chat completions through the OpenAI API.
//
// Tool call fragments arrive keyed by index. Each index is re-emitted as an
// item with its own id, and an item is finished when a later index starts
// or the stream ends.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates a provider. An empty API key yields a provider
// whose calls fail, allowing delayed configuration.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = openai.GPT4o
	}
	p := &OpenAIProvider{config: config}
	if config.APIKey != "" {
		clientConfig := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
		}
		p.client = openai.NewClientWithConfig(clientConfig)
	}
	return p
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Stream starts a streaming chat completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.ProviderEvent, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true

	policy := backoff.Policy{Initial: p.config.RetryDelay, Max: 8 * p.config.RetryDelay, Factor: 2}
	stream, err := backoff.Retry(ctx, policy, p.config.MaxRetries, isRetryable, func(int) (*openai.ChatCompletionStream, error) {
		return p.client.CreateChatCompletionStream(ctx, chatReq)
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	events := make(chan agent.ProviderEvent)
	go p.processStream(ctx, stream, events)
	return events, nil
}

// openCall is a tool call being assembled from indexed deltas.
type openCall struct {
	itemID string
	callID string
	name   string
	args   strings.Builder
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- agent.ProviderEvent) {
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

	open := make(map[int]*openCall)
	var text strings.Builder
	responseID := ""
	model := ""
	highest := -1

	finish := func(below int) bool {
		indexes := make([]int, 0, len(open))
		for idx := range open {
			if idx < below {
				indexes = append(indexes, idx)
			}
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			c := open[idx]
			delete(open, idx)
			if !send(agent.ProviderEvent{
				Type:      agent.EventToolCallDone,
				ItemID:    c.itemID,
				CallID:    c.callID,
				Name:      c.name,
				Arguments: c.args.String(),
			}) {
				return false
			}
		}
		return true
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(agent.ProviderEvent{Type: agent.EventProviderError, Err: err})
			return
		}
		if responseID == "" && resp.ID != "" {
			responseID = resp.ID
			model = resp.Model
			if !send(agent.ProviderEvent{Type: agent.EventResponseCreated, ResponseID: responseID}) {
				return
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !send(agent.ProviderEvent{Type: agent.EventOutputTextDelta, Delta: delta.Content}) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			c, ok := open[idx]
			if !ok {
				if idx <= highest {
					// Late fragment for a finished call.
					continue
				}
				if !finish(idx) {
					return
				}
				highest = idx
				c = &openCall{itemID: fmt.Sprintf("%s_item_%d", responseID, idx), callID: tc.ID, name: tc.Function.Name}
				open[idx] = c
				if !send(agent.ProviderEvent{Type: agent.EventToolCallAdded, ItemID: c.itemID, CallID: c.callID, Name: c.name}) {
					return
				}
			}
			if tc.ID != "" {
				c.callID = tc.ID
			}
			if tc.Function.Name != "" {
				c.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				c.args.WriteString(tc.Function.Arguments)
				if !send(agent.ProviderEvent{Type: agent.EventToolCallArgsDelta, ItemID: c.itemID, Delta: tc.Function.Arguments}) {
					return
				}
			}
		}
		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			if !finish(highest + 1) {
				return
			}
		}
	}

	if !finish(highest + 1) {
		return
	}
	send(agent.ProviderEvent{
		Type: agent.EventResponseCompleted,
		Response: &agent.CompletedResponse{
			ID:    responseID,
			Model: model,
			Text:  text.String(),
		},
	})
}

// Complete runs a non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletedResponse, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	out := &agent.CompletedResponse{ID: resp.ID, Model: resp.Model}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
			CallID:    tc.ID,
			ItemID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) buildRequest(req *agent.CompletionRequest) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAIMessages(req.Instructions, req.Input),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}
	return chatReq, nil
}

// convertToOpenAIMessages maps transcript items onto chat messages.
// Consecutive function calls join the preceding assistant message.
func convertToOpenAIMessages(instructions string, input []agent.InputItem) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(input)+1)
	if instructions != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instructions})
	}
	for _, item := range input {
		switch item.Type {
		case agent.InputFunctionCall:
			call := openai.ToolCall{
				ID:   item.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			}
			if n := len(out); n > 0 && out[n-1].Role == openai.ChatMessageRoleAssistant {
				out[n-1].ToolCalls = append(out[n-1].ToolCalls, call)
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{call},
			})
		case agent.InputFunctionCallOutput:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    item.Output,
				ToolCallID: item.CallID,
			})
		default:
			role := item.Role
			if role == "" {
				role = openai.ChatMessageRoleUser
			}
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: item.Content})
		}
	}
	return out
}

func convertToOpenAITools(defs []toolargs.Definition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, def := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

// isRetryable reports whether opening a stream may succeed on retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "timeout", "deadline exceeded", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
