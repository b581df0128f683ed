package agent

import (
	"context"

	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Provider is a language-model backend that streams tool-calling completions.
//
// Implementations must be safe for concurrent use. Each Stream call owns its
// channel, which the implementation closes when the response ends.
type Provider interface {
	// Name returns a stable lowercase identifier such as "openai".
	Name() string

	// Stream starts a streaming completion.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan ProviderEvent, error)

	// Complete runs a one-shot completion without streaming.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletedResponse, error)
}

// InputItemType tags entries of the model transcript.
type InputItemType string

const (
	InputMessage            InputItemType = "message"
	InputFunctionCall       InputItemType = "function_call"
	InputFunctionCallOutput InputItemType = "function_call_output"
)

// InputItem is one entry of the transcript sent to the provider.
type InputItem struct {
	Type InputItemType `json:"type"`

	// Message fields.
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// Function call fields.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Function call output.
	Output string `json:"output,omitempty"`
}

// UserMessage builds a user message item.
func UserMessage(content string) InputItem {
	return InputItem{Type: InputMessage, Role: "user", Content: content}
}

// AssistantMessage builds an assistant message item.
func AssistantMessage(content string) InputItem {
	return InputItem{Type: InputMessage, Role: "assistant", Content: content}
}

// CompletionRequest holds the parameters of one model call.
type CompletionRequest struct {
	Model        string                `json:"model"`
	Instructions string                `json:"instructions,omitempty"`
	Input        []InputItem           `json:"input"`
	Tools        []toolargs.Definition `json:"tools,omitempty"`

	// Include lists extra response fields to request, such as web search sources.
	Include []string `json:"include,omitempty"`

	// PreviousResponseID chains the request to an earlier response on
	// providers that keep server-side state. Others ignore it and rely on Input.
	PreviousResponseID string `json:"previous_response_id,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// ProviderEventType identifies a streaming event.
type ProviderEventType string

const (
	EventResponseCreated   ProviderEventType = "response.created"
	EventOutputTextDelta   ProviderEventType = "output_text.delta"
	EventToolCallAdded     ProviderEventType = "tool_call.item_added"
	EventToolCallArgsDelta ProviderEventType = "tool_call.arguments_delta"
	EventToolCallDone      ProviderEventType = "tool_call.item_done"
	EventResponseCompleted ProviderEventType = "response.completed"
	EventProviderError     ProviderEventType = "error"
)

// ProviderEvent is one event of a streaming completion. Only the fields
// relevant to Type are set.
type ProviderEvent struct {
	Type ProviderEventType

	ResponseID string
	Delta      string

	ItemID    string
	CallID    string
	Name      string
	Arguments string

	Response *CompletedResponse
	Err      error
}

// Annotation is a provider-supplied annotation on output text.
type Annotation struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// CompletedResponse is the final state of one model response.
type CompletedResponse struct {
	ID          string                   `json:"id"`
	Model       string                   `json:"model,omitempty"`
	Text        string                   `json:"text"`
	Annotations []Annotation             `json:"annotations,omitempty"`
	ToolCalls   []models.ToolCallRequest `json:"tool_calls,omitempty"`
}
