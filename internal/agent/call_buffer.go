package agent

import (
	"strings"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// CallBuffer accumulates streamed tool calls keyed by item id. Argument
// fragments of concurrently announced calls may interleave; a call is only
// released once its own done event arrives.
type CallBuffer struct {
	pending   map[string]*pendingCall
	completed []models.ToolCallRequest
}

type pendingCall struct {
	callID string
	name   string
	args   strings.Builder
}

// NewCallBuffer creates an empty buffer.
func NewCallBuffer() *CallBuffer {
	return &CallBuffer{pending: make(map[string]*pendingCall)}
}

func (b *CallBuffer) item(id string) *pendingCall {
	p, ok := b.pending[id]
	if !ok {
		p = &pendingCall{}
		b.pending[id] = p
	}
	return p
}

// Apply feeds a provider event into the buffer. It returns the completed
// call when ev finishes one.
func (b *CallBuffer) Apply(ev ProviderEvent) (models.ToolCallRequest, bool) {
	switch ev.Type {
	case EventToolCallAdded:
		p := b.item(ev.ItemID)
		if ev.CallID != "" {
			p.callID = ev.CallID
		}
		if ev.Name != "" {
			p.name = ev.Name
		}
	case EventToolCallArgsDelta:
		b.item(ev.ItemID).args.WriteString(ev.Delta)
	case EventToolCallDone:
		p := b.item(ev.ItemID)
		delete(b.pending, ev.ItemID)
		call := models.ToolCallRequest{
			ItemID:    ev.ItemID,
			CallID:    firstNonEmpty(ev.CallID, p.callID, ev.ItemID),
			Name:      firstNonEmpty(ev.Name, p.name),
			Arguments: firstNonEmpty(ev.Arguments, p.args.String()),
		}
		b.completed = append(b.completed, call)
		return call, true
	}
	return models.ToolCallRequest{}, false
}

// Completed returns the finished calls in done order.
func (b *CallBuffer) Completed() []models.ToolCallRequest {
	out := make([]models.ToolCallRequest, len(b.completed))
	copy(out, b.completed)
	return out
}

// Pending returns the number of announced calls without a done event.
func (b *CallBuffer) Pending() int {
	return len(b.pending)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
