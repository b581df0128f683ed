// Package harness wraps individual tool calls with argument validation, an
// actor-scoped idempotency cache and tracing.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/haasonsaas/agentcore/internal/cache"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultCacheSize bounds the idempotency cache of a harness.
const DefaultCacheSize = 256

// Call is one tool invocation requested by the model.
type Call struct {
	Name    string
	RawArgs string
	CallID  string
	Round   int
}

// Outcome is the result of running one call. Result is set when OK is true,
// Err otherwise. Trace is always populated.
type Outcome struct {
	OK     bool
	Result any
	Err    error
	Args   toolargs.Args
	Trace  models.ToolTrace
}

// Policy decides whether a normalized call may run and observes outcomes.
type Policy interface {
	Allow(ctx context.Context, call Call, args toolargs.Args) error
	Observe(call Call, args toolargs.Args, outcome Outcome)
}

// Config configures a Harness.
type Config struct {
	Actor    Actor
	Registry *Registry
	Resolver Resolver
	Policy   Policy

	// CacheSize bounds the idempotency cache. Default: 256.
	CacheSize int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Now     func() time.Time
}

// Harness runs tool calls for a single request or automation run. It owns
// its idempotency cache and trace list; a Harness must not be shared across
// actors.
type Harness struct {
	actor    Actor
	registry *Registry
	resolver Resolver
	policy   Policy
	cache    *cache.LRU[any]
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	now      func() time.Time

	mu     sync.Mutex
	traces []models.ToolTrace
}

// New creates a Harness.
func New(cfg Config) *Harness {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	return &Harness{
		actor:    cfg.Actor,
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		policy:   cfg.Policy,
		cache:    cache.NewLRU[any](cache.LRUOptions{MaxSize: cfg.CacheSize}),
		logger:   cfg.Logger.With("component", "harness"),
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		now:      cfg.Now,
	}
}

// Actor returns the actor the harness runs for.
func (h *Harness) Actor() Actor { return h.actor }

// Registry returns the executors available to the harness.
func (h *Harness) Registry() *Registry { return h.registry }

// Run executes call using the harness policy, if any.
func (h *Harness) Run(ctx context.Context, call Call) Outcome {
	return h.RunWithPolicy(ctx, call, h.policy)
}

// RunWithPolicy executes call, consulting policy after normalization.
//
// The sequence is parse, resolve, normalize, key, policy, cache, execute.
// At most one executor invocation happens per distinct idempotency key.
func (h *Harness) RunWithPolicy(ctx context.Context, call Call, policy Policy) Outcome {
	ctx, span := h.tracer.TraceToolCall(ctx, call.Name, call.CallID)
	defer span.End()

	started := h.now()
	trace := models.ToolTrace{
		TraceID:   uuid.NewString(),
		RequestID: h.actor.RequestID,
		CallID:    call.CallID,
		Round:     call.Round,
		Name:      call.Name,
		StartedAt: started,
	}

	finish := func(out Outcome) Outcome {
		out.Trace.FinishedAt = h.now()
		out.Trace.DurationMs = out.Trace.FinishedAt.Sub(out.Trace.StartedAt).Milliseconds()
		if out.Err != nil {
			out.Trace.Error = out.Err.Error()
			h.tracer.RecordError(span, out.Err)
		}
		h.tracer.SetAttributes(span, "tool.status", string(out.Trace.Status), "tool.cache_hit", out.Trace.CacheHit)
		h.appendTrace(out.Trace)
		h.metrics.RecordToolCall(call.Name, string(out.Trace.Status), out.Trace.CacheHit,
			out.Trace.FinishedAt.Sub(out.Trace.StartedAt).Seconds())
		if policy != nil && out.Args != nil {
			policy.Observe(call, out.Args, out)
		}
		return out
	}

	args, key, err := h.prepare(ctx, call)
	if err != nil {
		trace.Status = models.TraceValidationError
		h.logger.Debug("tool call rejected", "tool", call.Name, "call_id", call.CallID, "error", err)
		return finish(Outcome{Err: err, Trace: trace})
	}
	trace.IdempotencyKey = key

	if policy != nil {
		if perr := policy.Allow(ctx, call, args); perr != nil {
			var pe *PolicyError
			if !errors.As(perr, &pe) {
				pe = NewPolicyError(call.Name, perr)
			}
			trace.Status = models.TraceError
			h.metrics.RecordPolicyRejection(call.Name, pe.Reason)
			h.logger.Info("tool call blocked by policy", "tool", call.Name, "call_id", call.CallID, "reason", pe.Reason)
			return finish(Outcome{Err: pe, Args: args, Trace: trace})
		}
	}

	if cached, ok := h.cache.Get(key); ok {
		trace.CacheHit = true
		trace.Status = models.TraceSuccess
		h.tracer.AddEvent(span, "cache_hit", "tool.idempotency_key", key)
		return finish(Outcome{OK: true, Result: cached, Args: args, Trace: trace})
	}

	exec, ok := h.registry.Get(call.Name)
	if !ok {
		trace.Status = models.TraceError
		return finish(Outcome{Err: &ExecError{Tool: call.Name, Err: ErrNoExecutor}, Args: args, Trace: trace})
	}

	result, err := h.invoke(context.WithoutCancel(ctx), exec, call.Name, args)
	if err != nil {
		trace.Status = models.TraceError
		h.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.CallID, "error", err)
		return finish(Outcome{Err: err, Args: args, Trace: trace})
	}

	h.cache.Add(key, result)
	trace.Status = models.TraceSuccess
	return finish(Outcome{OK: true, Result: result, Args: args, Trace: trace})
}

// prepare parses, resolves and normalizes the call, returning the typed
// arguments and their idempotency key.
func (h *Harness) prepare(ctx context.Context, call Call) (toolargs.Args, string, error) {
	raw := call.RawArgs
	if raw == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) {
		return nil, "", invalid(fmt.Errorf("arguments for %s are not valid JSON", call.Name))
	}
	if h.resolver != nil {
		resolved, err := h.resolver(ctx, call, raw)
		if err != nil {
			return nil, "", invalid(err)
		}
		raw = resolved
	}

	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, "", invalid(fmt.Errorf("arguments for %s must be a JSON object", call.Name))
	}
	if fields == nil {
		fields = map[string]any{}
	}

	args, err := toolargs.Normalize(call.Name, fields)
	if err != nil {
		return nil, "", invalid(err)
	}
	key, err := toolargs.IdempotencyKey(args)
	if err != nil {
		return nil, "", invalid(err)
	}
	return args, key, nil
}

func (h *Harness) invoke(ctx context.Context, exec Executor, name string, args toolargs.Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("tool executor panicked", "tool", name, "panic", r)
			result = nil
			err = &ExecError{Tool: name, Err: fmt.Errorf("%w: %v", ErrExecutorPanic, r)}
		}
	}()
	result, err = exec(ctx, args, h.actor)
	if err != nil {
		return nil, &ExecError{Tool: name, Err: err}
	}
	return result, nil
}

// AppendTrace records a trace produced outside Run, such as a round limit marker.
func (h *Harness) AppendTrace(t models.ToolTrace) {
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	if t.RequestID == "" {
		t.RequestID = h.actor.RequestID
	}
	h.appendTrace(t)
}

func (h *Harness) appendTrace(t models.ToolTrace) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.traces = append(h.traces, t)
}

// Traces returns a copy of the traces recorded so far.
func (h *Harness) Traces() []models.ToolTrace {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ToolTrace, len(h.traces))
	copy(out, h.traces)
	return out
}
