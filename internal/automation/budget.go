package automation

import (
	"context"
	"sync"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
)

// ActionBudget is the gate of an unattended run. Each mutating call spends
// one action; once the allowance is spent further mutating calls are
// rejected with ErrActionBudgetExceeded. Repeats answered from the
// idempotency cache are refunded.
type ActionBudget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewActionBudget creates a budget of limit mutating calls. A non-positive
// limit falls back to the default allowance.
func NewActionBudget(limit int) *ActionBudget {
	if limit <= 0 {
		limit = toolargs.DefaultActionsPerRun
	}
	return &ActionBudget{limit: limit}
}

// Allow spends one action for mutating calls.
func (b *ActionBudget) Allow(_ context.Context, call harness.Call, _ toolargs.Args) error {
	if !toolargs.IsMutating(call.Name) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return harness.NewPolicyError(call.Name, ErrActionBudgetExceeded)
	}
	b.used++
	return nil
}

// Observe refunds cache hits.
func (b *ActionBudget) Observe(call harness.Call, _ toolargs.Args, out harness.Outcome) {
	if !toolargs.IsMutating(call.Name) || !out.OK || !out.Trace.CacheHit {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		b.used--
	}
}

// Used returns the number of actions spent.
func (b *ActionBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the number of actions left.
func (b *ActionBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.used
}

// DryRunResult is returned instead of executing a mutating call in a dry run.
type DryRunResult struct {
	DryRun    bool          `json:"dry_run"`
	Tool      string        `json:"tool"`
	Arguments toolargs.Args `json:"arguments"`
	Message   string        `json:"message"`
}

// dryRunRegistry replaces every mutating executor in r with a simulation.
func dryRunRegistry(r *harness.Registry) *harness.Registry {
	sim := harness.NewRegistry()
	for _, name := range r.Names() {
		if !toolargs.IsMutating(name) {
			continue
		}
		tool := name
		_ = sim.Register(tool, func(_ context.Context, args toolargs.Args, _ harness.Actor) (any, error) {
			return DryRunResult{
				DryRun:    true,
				Tool:      tool,
				Arguments: args,
				Message:   "dry run: no changes were made",
			}, nil
		})
	}
	return r.Merge(sim)
}
