package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/haasonsaas/agentcore/internal/agent"
)

// sseSink writes agent events as named server-sent events. Once the client
// is gone, events are dropped; the turn itself keeps running.
type sseSink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	client context.Context
	logger *slog.Logger
	closed bool
}

func newSSESink(w http.ResponseWriter, client context.Context, logger *slog.Logger) *sseSink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s := &sseSink{w: w, rc: http.NewResponseController(w), client: client, logger: logger}
	_ = s.rc.Flush()
	return s
}

func (s *sseSink) Emit(_ context.Context, e agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.client.Err() != nil {
		s.closed = true
		s.logger.Debug("client disconnected, dropping events")
		return
	}
	data, err := agent.MarshalEventData(e)
	if err != nil {
		s.logger.Error("failed to encode event", "type", e.Type, "error", err)
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		s.closed = true
		return
	}
	if err := s.rc.Flush(); err != nil {
		s.closed = true
	}
}
