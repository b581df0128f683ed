package agent

import (
	"encoding/json"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// EventType names an event emitted to callers while a turn runs. The values
// double as SSE event names.
type EventType string

const (
	EventCitations  EventType = "citations"
	EventToken      EventType = "token"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventToolTrace  EventType = "tool_trace"
	EventWebSources EventType = "web_sources"
	EventDebugError EventType = "debug_error"
	EventDone       EventType = "done"
)

// Event is one emitted event. Data holds the payload type matching Type.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// TokenPayload carries streamed answer text.
type TokenPayload struct {
	Delta string `json:"delta"`
}

// ToolCallPayload announces a call about to run.
type ToolCallPayload struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Round     int    `json:"round"`
}

// ToolResultPayload reports the outcome of a call. Output is the JSON text
// returned to the model.
type ToolResultPayload struct {
	CallID         string          `json:"call_id"`
	Name           string          `json:"name"`
	Round          int             `json:"round"`
	OK             bool            `json:"ok"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorKind      ErrorKind       `json:"error_kind,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CacheHit       bool            `json:"cache_hit"`
	Mutating       bool            `json:"mutating"`
}

// CitationsPayload lists URL citations of the final answer.
type CitationsPayload struct {
	Citations []Citation `json:"citations"`
}

// WebSourcesPayload lists sources returned by web tools during the turn.
type WebSourcesPayload struct {
	Sources []models.WebSource `json:"sources"`
}

// DebugErrorPayload carries diagnostic detail, emitted only on request.
type DebugErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// DonePayload ends a turn.
type DonePayload struct {
	Terminal   Terminal `json:"terminal"`
	Rounds     int      `json:"rounds"`
	ResponseID string   `json:"response_id,omitempty"`

	// TaskSetup is the turn's task setup state when the gate tracks one.
	TaskSetup *models.TaskSetupState `json:"task_setup,omitempty"`
}
