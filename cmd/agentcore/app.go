package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/agent/providers"
	"github.com/haasonsaas/agentcore/internal/auth"
	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/queue"
	"github.com/haasonsaas/agentcore/internal/tasksetup"
	"github.com/haasonsaas/agentcore/internal/workspace"
)

// app holds every long-lived component built from a configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	automations automation.Store
	jobs        queue.Store
	waker       queue.Waker
	queue       *queue.Queue

	runtime *automation.Runtime
	runner  *automation.Runner
	chat    *agent.ChatService
	tools   *harness.Registry
	jwt     *auth.JWTService

	closers []func(context.Context) error
}

// newLogger builds the process logger. Without an explicit format, text is
// used on a terminal and JSON otherwise.
func newLogger(cfg config.LoggingConfig, out io.Writer, debug bool) *slog.Logger {
	format := cfg.Format
	if format == "" {
		format = "json"
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	level := cfg.Level
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    format,
		Output:    out,
		AddSource: cfg.AddSource,
	})
}

// openApp opens the metrics registry, tracer, stores and queue. Maintenance
// commands stop here; they need no model provider.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if boolValue(cfg.Metrics.Enabled, true) {
		a.metrics = observability.NewMetrics(a.registry)
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	a.tracer = tracer
	a.closers = append(a.closers, shutdown)

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	if err := a.openQueue(); err != nil {
		return nil, err
	}
	return a, nil
}

// buildApp opens the stores and wires the runtime, runner and chat service.
// The caller must call close.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	provider, err := newProvider(cfg.Agent)
	if err != nil {
		return nil, err
	}

	a.tools = harness.NewRegistry()
	runTools := harness.NewRegistry()
	if boolValue(cfg.Server.DevWorkspace, true) {
		notes := workspace.NewMemory()
		if err := notes.Register(a.tools); err != nil {
			return nil, err
		}
		if err := notes.Register(runTools); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory workspace tools; notes are not persisted")
	}
	setup := tasksetup.NewTools(tasksetup.ToolsConfig{Store: a.automations, Logger: logger})
	if err := setup.Register(a.tools); err != nil {
		return nil, err
	}

	orchestrator := func(mode string) *agent.Orchestrator {
		return agent.NewOrchestrator(agent.OrchestratorConfig{
			Provider:    provider,
			Model:       cfg.Agent.Model,
			MaxRounds:   cfg.Agent.MaxRounds,
			Temperature: cfg.Agent.Temperature,
			MaxTokens:   cfg.Agent.MaxTokens,
			Mode:        mode,
			Logger:      logger,
			Metrics:     a.metrics,
			Tracer:      a.tracer,
		})
	}

	a.chat = agent.NewChatService(agent.ChatConfig{
		Orchestrator: orchestrator("chat"),
		Instructions: cfg.Agent.Instructions,
		CacheSize:    cfg.Agent.CacheSize,
		Logger:       logger,
		Metrics:      a.metrics,
		Tracer:       a.tracer,
	})
	a.runtime = automation.NewRuntime(automation.RuntimeConfig{
		Store:        a.automations,
		Orchestrator: orchestrator("automation"),
		Tools:        runTools,
		Instructions: cfg.Automation.Instructions,
		CacheSize:    cfg.Agent.CacheSize,
		Logger:       logger,
		Metrics:      a.metrics,
		Tracer:       a.tracer,
	})
	a.runner = automation.NewRunner(a.runtime, a.queue, automation.RunnerConfig{
		Schedule:    cfg.Automation.SweepSchedule,
		BatchSize:   cfg.Automation.SweepBatch,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Logger:      logger,
	})
	a.jwt = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	return a, nil
}

// openStores opens the automation and job stores for the configured driver.
// Automations persist only on postgres; other drivers keep them in memory.
func (a *app) openStores(ctx context.Context) error {
	db := a.cfg.Database
	sqlConfig := &queue.SQLConfig{
		MaxOpenConns:    db.MaxConnections,
		MaxIdleConns:    max(db.MinConnections, 1),
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
		ConnectTimeout:  db.ConnectTimeout,
	}

	switch db.Driver {
	case config.DriverPostgres:
		pool := automation.DefaultPoolConfig()
		pool.MaxConns = int32(db.MaxConnections)
		if db.MinConnections > 0 {
			pool.MinConns = int32(db.MinConnections)
		}
		if db.ConnMaxLifetime > 0 {
			pool.MaxConnLifetime = db.ConnMaxLifetime
		}
		if db.ConnMaxIdleTime > 0 {
			pool.MaxConnIdleTime = db.ConnMaxIdleTime
		}
		if db.ConnectTimeout > 0 {
			pool.ConnectTimeout = db.ConnectTimeout
		}
		automations, err := automation.NewPostgresStore(ctx, db.URL, pool)
		if err != nil {
			return fmt.Errorf("open automation store: %w", err)
		}
		a.automations = automations
		jobs, err := queue.NewPostgresStoreFromDSN(db.URL, sqlConfig)
		if err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
		a.jobs = jobs
		if db.AutoMigrate {
			if err := automations.Migrate(ctx); err != nil {
				return err
			}
			if err := jobs.Migrate(ctx); err != nil {
				return err
			}
		}
	case config.DriverMySQL:
		jobs, err := queue.NewMySQLStoreFromDSN(db.URL, sqlConfig)
		if err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
		a.jobs = jobs
		if db.AutoMigrate {
			if err := jobs.Migrate(ctx); err != nil {
				return err
			}
		}
	case config.DriverSQLite:
		jobs, err := queue.NewSQLiteStore(db.Path)
		if err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
		a.jobs = jobs
	default:
		a.jobs = queue.NewMemoryStore()
	}
	if a.automations == nil {
		a.logger.Warn("automations are kept in memory", "driver", db.Driver)
		a.automations = automation.NewMemoryStore()
	}
	a.closers = append(a.closers,
		func(context.Context) error { return a.jobs.Close() },
		func(context.Context) error { return a.automations.Close() },
	)
	return nil
}

func (a *app) openQueue() error {
	qc := a.cfg.Queue
	switch qc.Waker.Kind {
	case config.WakerChannel:
		a.waker = queue.NewChannelWaker()
	case config.WakerRedis:
		w, err := queue.NewRedisWaker(queue.RedisWakerConfig{
			Address:   qc.Waker.Redis.Address,
			Password:  qc.Waker.Redis.Password,
			DB:        qc.Waker.Redis.DB,
			Key:       qc.Waker.Redis.Key,
			BlockWait: qc.Waker.Redis.BlockWait,
			Logger:    a.logger,
		})
		if err != nil {
			return fmt.Errorf("connect redis waker: %w", err)
		}
		a.waker = w
	case config.WakerAMQP:
		w, err := queue.NewAMQPWaker(queue.AMQPWakerConfig{
			URL:      qc.Waker.AMQP.URL,
			Queue:    qc.Waker.AMQP.Queue,
			Prefetch: qc.Waker.AMQP.Prefetch,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("connect amqp waker: %w", err)
		}
		a.waker = w
	}

	opts := []queue.Option{
		queue.WithConcurrency(qc.Concurrency),
		queue.WithBatchSize(qc.BatchSize),
		queue.WithPollInterval(qc.PollInterval),
		queue.WithMaxAttempts(qc.MaxAttempts),
		queue.WithLeaseTimeout(qc.LeaseTimeout),
		queue.WithBackoff(backoff.Policy{
			Initial: qc.Backoff.Initial,
			Max:     qc.Backoff.Max,
			Factor:  qc.Backoff.Factor,
			Jitter:  qc.Backoff.Jitter,
		}),
		queue.WithLogger(a.logger),
		queue.WithMetrics(a.metrics),
		queue.WithTracer(a.tracer),
	}
	if qc.WorkerID != "" {
		opts = append(opts, queue.WithWorkerID(qc.WorkerID))
	}
	if a.waker != nil {
		opts = append(opts, queue.WithWaker(a.waker))
		a.closers = append(a.closers, func(context.Context) error { return a.waker.Close() })
	}
	a.queue = queue.New(a.jobs, opts...)
	return nil
}

func newProvider(cfg config.AgentConfig) (agent.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxTokens:    cfg.MaxTokens,
		})
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, errors.New("openai: API key is required")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func boolValue(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
