package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the execution core.
//
// All methods are safe to call on a nil *Metrics, which lets components
// treat metrics as optional.
type Metrics struct {
	// ToolCalls counts harness calls.
	// Labels: tool, status (success|error|validation_error), cache (hit|miss)
	ToolCalls *prometheus.CounterVec

	// ToolDuration measures executor time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// Rounds counts orchestrator rounds.
	// Labels: mode (chat|automation)
	Rounds *prometheus.CounterVec

	// Turns counts finished turns by terminal state.
	// Labels: mode, terminal (answered|round_limit|error)
	Turns *prometheus.CounterVec

	// PolicyRejections counts calls blocked by a policy gate.
	// Labels: tool, reason
	PolicyRejections *prometheus.CounterVec

	// AutomationRuns counts automation runs.
	// Labels: trigger, status (succeeded|failed|skipped)
	AutomationRuns *prometheus.CounterVec

	// AutomationRunDuration measures run time in seconds.
	AutomationRunDuration prometheus.Histogram

	// QueueJobs counts finished job attempts.
	// Labels: type, outcome (completed|retry|failed)
	QueueJobs *prometheus.CounterVec

	// QueueClaimed measures how many jobs each claim returned.
	QueueClaimed prometheus.Histogram

	// QueueInFlight tracks jobs currently executing.
	QueueInFlight prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. A nil registerer uses
// the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_calls_total",
				Help: "Total number of tool calls by tool, status and cache outcome",
			},
			[]string{"tool", "status", "cache"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_duration_seconds",
				Help:    "Duration of tool executor calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		Rounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_rounds_total",
				Help: "Total number of model rounds",
			},
			[]string{"mode"},
		),
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_turns_total",
				Help: "Total number of finished turns by terminal state",
			},
			[]string{"mode", "terminal"},
		),
		PolicyRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_policy_rejections_total",
				Help: "Tool calls rejected by a policy gate",
			},
			[]string{"tool", "reason"},
		),
		AutomationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_automation_runs_total",
				Help: "Automation runs by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		AutomationRunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_automation_run_duration_seconds",
				Help:    "Duration of automation runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		QueueJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_queue_jobs_total",
				Help: "Finished job attempts by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		QueueClaimed: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_queue_claimed_jobs",
				Help:    "Number of jobs returned per claim",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		QueueInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_queue_in_flight",
				Help: "Jobs currently executing",
			},
		),
	}
}

// RecordToolCall records one harness call.
func (m *Metrics) RecordToolCall(tool, status string, cacheHit bool, durationSeconds float64) {
	if m == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.ToolCalls.WithLabelValues(tool, status, cache).Inc()
	if !cacheHit {
		m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
	}
}

// RecordRound records one orchestrator round.
func (m *Metrics) RecordRound(mode string) {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues(mode).Inc()
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(mode, terminal string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(mode, terminal).Inc()
}

// RecordPolicyRejection records a call blocked by a policy gate.
func (m *Metrics) RecordPolicyRejection(tool, reason string) {
	if m == nil {
		return
	}
	m.PolicyRejections.WithLabelValues(tool, reason).Inc()
}

// RecordAutomationRun records an automation run outcome.
func (m *Metrics) RecordAutomationRun(trigger, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.AutomationRuns.WithLabelValues(trigger, status).Inc()
	if status != "skipped" {
		m.AutomationRunDuration.Observe(durationSeconds)
	}
}

// RecordJob records one finished job attempt.
func (m *Metrics) RecordJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.QueueJobs.WithLabelValues(jobType, outcome).Inc()
}

// RecordClaim records the size of a claim batch.
func (m *Metrics) RecordClaim(n int) {
	if m == nil {
		return
	}
	m.QueueClaimed.Observe(float64(n))
}

// JobStarted increments the in-flight gauge.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.QueueInFlight.Inc()
}

// JobFinished decrements the in-flight gauge.
func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.QueueInFlight.Dec()
}
