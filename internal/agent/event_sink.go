package agent

import (
	"context"
	"sync"
)

// EventSink receives events while a turn runs.
// Implementations must be safe to call from multiple goroutines.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that dispatches to every non-nil sink.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches the event to all sinks.
func (s *MultiSink) Emit(ctx context.Context, e Event) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, e)
	}
}

// CallbackSink wraps a function as an EventSink.
type CallbackSink struct {
	fn func(ctx context.Context, e Event)
}

// NewCallbackSink creates a sink that calls fn for each event.
func NewCallbackSink(fn func(ctx context.Context, e Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function.
func (s *CallbackSink) Emit(ctx context.Context, e Event) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}

// NopSink discards all events.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(context.Context, Event) {}

// RecordingSink keeps every event in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingSink creates an empty recorder.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Emit appends the event.
func (s *RecordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns the recorded events of type t.
func (s *RecordingSink) OfType(t EventType) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
