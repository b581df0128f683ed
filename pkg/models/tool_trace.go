package models

import "time"

// ToolCallRequest is one complete tool call assembled from a provider stream.
type ToolCallRequest struct {
	CallID    string `json:"call_id"`
	ItemID    string `json:"item_id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TraceStatus is the outcome recorded for a single tool call.
type TraceStatus string

const (
	TraceSuccess         TraceStatus = "success"
	TraceError           TraceStatus = "error"
	TraceValidationError TraceStatus = "validation_error"
)

// RoundLimitTraceName marks the trace entry appended when a turn stops at its round cap.
const RoundLimitTraceName = "round_limit"

// ToolTrace is the audit record for one tool call inside a harness.
type ToolTrace struct {
	TraceID        string      `json:"trace_id"`
	RequestID      string      `json:"request_id"`
	CallID         string      `json:"call_id"`
	Round          int         `json:"round"`
	Name           string      `json:"name"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	CacheHit       bool        `json:"cache_hit"`
	Status         TraceStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	DurationMs     int64       `json:"duration_ms"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// IsRoundLimitMarker reports whether the trace is the synthetic round cap marker.
func (t ToolTrace) IsRoundLimitMarker() bool {
	return t.Name == RoundLimitTraceName && t.CallID == ""
}
