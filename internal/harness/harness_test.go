package harness

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

type countingExecutor struct {
	calls atomic.Int32
	fn    func(args toolargs.Args) (any, error)
}

func (c *countingExecutor) exec(_ context.Context, args toolargs.Args, _ Actor) (any, error) {
	c.calls.Add(1)
	if c.fn != nil {
		return c.fn(args)
	}
	return map[string]any{"ok": true}, nil
}

func newTestHarness(t *testing.T, execs map[string]Executor, opts ...func(*Config)) *Harness {
	t.Helper()
	reg := NewRegistry()
	if err := reg.RegisterAll(execs); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	cfg := Config{Actor: Actor{WorkspaceID: "ws-1", UserID: "u-1", RequestID: "req-1"}, Registry: reg}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func TestRunIdempotent(t *testing.T) {
	counter := &countingExecutor{fn: func(args toolargs.Args) (any, error) {
		return "note-" + args.(*toolargs.CreateNoteArgs).Title, nil
	}}
	h := newTestHarness(t, map[string]Executor{toolargs.ToolCreateNote: counter.exec})
	ctx := context.Background()

	first := h.Run(ctx, Call{Name: toolargs.ToolCreateNote, RawArgs: `{"title":"Plan","content":"x"}`, CallID: "c1", Round: 0})
	second := h.Run(ctx, Call{Name: toolargs.ToolCreateNote, RawArgs: `{"content":"x","title":" Plan "}`, CallID: "c2", Round: 1})

	if !first.OK || !second.OK {
		t.Fatalf("expected both calls to succeed: %v / %v", first.Err, second.Err)
	}
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("executor calls = %d, want 1", got)
	}
	if first.Trace.CacheHit {
		t.Error("first call should not be a cache hit")
	}
	if !second.Trace.CacheHit {
		t.Error("second call should be a cache hit")
	}
	if first.Result != second.Result {
		t.Errorf("results differ: %v vs %v", first.Result, second.Result)
	}
	if first.Trace.IdempotencyKey != second.Trace.IdempotencyKey {
		t.Errorf("keys differ: %q vs %q", first.Trace.IdempotencyKey, second.Trace.IdempotencyKey)
	}
}

func TestRunRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	counter := &countingExecutor{}
	h := newTestHarness(t, map[string]Executor{toolargs.ToolCreateNote: counter.exec})
	ctx := context.Background()
	h.Run(ctx, Call{Name: toolargs.ToolCreateNote, RawArgs: `{"title":"Plan"}`, CallID: "c1"})
	second := h.Run(ctx, Call{Name: toolargs.ToolCreateNote, RawArgs: `{"title":"Plan"}`, CallID: "c2"})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	tests := []struct {
		name      string
		span      sdktrace.ReadOnlySpan
		cacheHit  bool
		numEvents int
	}{
		{name: "executed", span: spans[0], cacheHit: false, numEvents: 0},
		{name: "cached", span: spans[1], cacheHit: true, numEvents: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := map[attribute.Key]attribute.Value{}
			for _, kv := range tt.span.Attributes() {
				attrs[kv.Key] = kv.Value
			}
			if got := attrs["tool.status"].AsString(); got != string(models.TraceSuccess) {
				t.Errorf("tool.status = %q", got)
			}
			if got := attrs["tool.cache_hit"].AsBool(); got != tt.cacheHit {
				t.Errorf("tool.cache_hit = %v, want %v", got, tt.cacheHit)
			}
			events := tt.span.Events()
			if len(events) != tt.numEvents {
				t.Fatalf("events = %v, want %d", events, tt.numEvents)
			}
			if tt.numEvents > 0 && events[0].Name != "cache_hit" {
				t.Errorf("event = %q, want cache_hit", events[0].Name)
			}
		})
	}
	if !second.Trace.CacheHit {
		t.Error("second call should be a cache hit")
	}
}

func TestRunSeparateHarnessesDoNotShareCache(t *testing.T) {
	counter := &countingExecutor{}
	execs := map[string]Executor{toolargs.ToolDeleteNote: counter.exec}
	a := newTestHarness(t, execs)
	b := newTestHarness(t, execs)
	call := Call{Name: toolargs.ToolDeleteNote, RawArgs: `{"noteId":"n1"}`, CallID: "c1"}

	a.Run(context.Background(), call)
	b.Run(context.Background(), call)
	if got := counter.calls.Load(); got != 2 {
		t.Fatalf("executor calls = %d, want 2", got)
	}
}

func TestRunValidationErrors(t *testing.T) {
	counter := &countingExecutor{}
	h := newTestHarness(t, map[string]Executor{toolargs.ToolCreateNote: counter.exec})

	tests := []struct {
		name string
		call Call
	}{
		{name: "invalid json", call: Call{Name: toolargs.ToolCreateNote, RawArgs: `{"title":`}},
		{name: "not an object", call: Call{Name: toolargs.ToolCreateNote, RawArgs: `["a"]`}},
		{name: "missing field", call: Call{Name: toolargs.ToolCreateNote, RawArgs: `{"content":"x"}`}},
		{name: "unknown tool", call: Call{Name: "launch_rocket", RawArgs: `{}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.Run(context.Background(), tt.call)
			if out.OK {
				t.Fatal("expected failure")
			}
			if !errors.Is(out.Err, ErrInvalidArguments) {
				t.Errorf("error = %v, want ErrInvalidArguments", out.Err)
			}
			if out.Trace.Status != models.TraceValidationError {
				t.Errorf("status = %q, want validation_error", out.Trace.Status)
			}
		})
	}
	if got := counter.calls.Load(); got != 0 {
		t.Errorf("executor should not run, ran %d times", got)
	}
}

func TestRunEmptyArgumentsAreAnObject(t *testing.T) {
	counter := &countingExecutor{}
	h := newTestHarness(t, map[string]Executor{toolargs.ToolListFolders: counter.exec})
	out := h.Run(context.Background(), Call{Name: toolargs.ToolListFolders})
	if !out.OK {
		t.Fatalf("Run() error = %v", out.Err)
	}
}

func TestRunExecutorErrorIsNotCached(t *testing.T) {
	fail := true
	counter := &countingExecutor{fn: func(toolargs.Args) (any, error) {
		if fail {
			return nil, errors.New("storage offline")
		}
		return "ok", nil
	}}
	h := newTestHarness(t, map[string]Executor{toolargs.ToolDeleteNote: counter.exec})
	call := Call{Name: toolargs.ToolDeleteNote, RawArgs: `{"noteId":"n1"}`}

	out := h.Run(context.Background(), call)
	var execErr *ExecError
	if !errors.As(out.Err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", out.Err)
	}
	if out.Trace.Status != models.TraceError {
		t.Errorf("status = %q, want error", out.Trace.Status)
	}

	fail = false
	out = h.Run(context.Background(), call)
	if !out.OK || out.Trace.CacheHit {
		t.Fatalf("retry should execute: ok=%v cacheHit=%v", out.OK, out.Trace.CacheHit)
	}
	if got := counter.calls.Load(); got != 2 {
		t.Errorf("executor calls = %d, want 2", got)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	h := newTestHarness(t, map[string]Executor{
		toolargs.ToolGetNote: func(context.Context, toolargs.Args, Actor) (any, error) {
			panic("nil map")
		},
	})
	out := h.Run(context.Background(), Call{Name: toolargs.ToolGetNote, RawArgs: `{"noteId":"n1"}`})
	if !errors.Is(out.Err, ErrExecutorPanic) {
		t.Fatalf("error = %v, want ErrExecutorPanic", out.Err)
	}
}

func TestRunWithoutExecutor(t *testing.T) {
	h := newTestHarness(t, nil)
	out := h.Run(context.Background(), Call{Name: toolargs.ToolWebSearch, RawArgs: `{"query":"go"}`})
	if !errors.Is(out.Err, ErrNoExecutor) {
		t.Fatalf("error = %v, want ErrNoExecutor", out.Err)
	}
}

type denyPolicy struct {
	observed []string
}

func (p *denyPolicy) Allow(_ context.Context, call Call, _ toolargs.Args) error {
	if toolargs.IsMutating(call.Name) {
		return errors.New("writes are disabled")
	}
	return nil
}

func (p *denyPolicy) Observe(call Call, _ toolargs.Args, out Outcome) {
	p.observed = append(p.observed, call.Name+":"+string(out.Trace.Status))
}

func TestRunPolicyRejection(t *testing.T) {
	counter := &countingExecutor{}
	policy := &denyPolicy{}
	h := newTestHarness(t, map[string]Executor{
		toolargs.ToolCreateNote:  counter.exec,
		toolargs.ToolSearchNotes: counter.exec,
	}, func(c *Config) { c.Policy = policy })

	blocked := h.Run(context.Background(), Call{Name: toolargs.ToolCreateNote, RawArgs: `{"title":"x"}`})
	var pe *PolicyError
	if !errors.As(blocked.Err, &pe) {
		t.Fatalf("error = %v, want *PolicyError", blocked.Err)
	}
	if pe.Tool != toolargs.ToolCreateNote {
		t.Errorf("policy tool = %q", pe.Tool)
	}
	allowed := h.Run(context.Background(), Call{Name: toolargs.ToolSearchNotes, RawArgs: `{"query":"x"}`})
	if !allowed.OK {
		t.Fatalf("read should be allowed: %v", allowed.Err)
	}
	if got := counter.calls.Load(); got != 1 {
		t.Errorf("executor calls = %d, want 1", got)
	}
	want := []string{"create_note:error", "search_notes:success"}
	if strings.Join(policy.observed, ",") != strings.Join(want, ",") {
		t.Errorf("observed = %v, want %v", policy.observed, want)
	}
}

func TestRunResolverInjectsOpenNote(t *testing.T) {
	var seen string
	h := newTestHarness(t, map[string]Executor{
		toolargs.ToolGetNote: func(_ context.Context, args toolargs.Args, _ Actor) (any, error) {
			seen = args.(*toolargs.GetNoteArgs).NoteID
			return nil, nil
		},
	}, func(c *Config) { c.Resolver = OpenNoteResolver("open-1", toolargs.ToolGetNote) })

	out := h.Run(context.Background(), Call{Name: toolargs.ToolGetNote, RawArgs: `{}`})
	if !out.OK {
		t.Fatalf("Run() error = %v", out.Err)
	}
	if seen != "open-1" {
		t.Errorf("noteId = %q, want open-1", seen)
	}
}

func TestRunExecutorSeesActor(t *testing.T) {
	var got Actor
	h := newTestHarness(t, map[string]Executor{
		toolargs.ToolListFolders: func(_ context.Context, _ toolargs.Args, actor Actor) (any, error) {
			got = actor
			return nil, nil
		},
	})
	h.Run(context.Background(), Call{Name: toolargs.ToolListFolders})
	if got.WorkspaceID != "ws-1" || got.UserID != "u-1" {
		t.Errorf("actor = %+v", got)
	}
}

func TestTracesAreCopied(t *testing.T) {
	h := newTestHarness(t, map[string]Executor{toolargs.ToolListFolders: (&countingExecutor{}).exec})
	h.Run(context.Background(), Call{Name: toolargs.ToolListFolders, CallID: "c1", Round: 2})
	h.AppendTrace(models.ToolTrace{Name: models.RoundLimitTraceName, Round: 3})

	traces := h.Traces()
	if len(traces) != 2 {
		t.Fatalf("traces = %d, want 2", len(traces))
	}
	if traces[0].RequestID != "req-1" || traces[0].Round != 2 || traces[0].TraceID == "" {
		t.Errorf("unexpected trace: %+v", traces[0])
	}
	if !traces[1].IsRoundLimitMarker() {
		t.Errorf("second trace should be the round limit marker: %+v", traces[1])
	}
	traces[0].Name = "mutated"
	if h.Traces()[0].Name == "mutated" {
		t.Error("Traces() must return a copy")
	}
}
