package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/observability"
)

// Default settings applied by New.
const (
	DefaultConcurrency  = 4
	DefaultBatchSize    = 10
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 3
	DefaultLeaseTimeout = 5 * time.Minute
)

// Option configures a Queue.
type Option func(*Queue)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithWorkerID sets the id recorded on claimed jobs. Default: a UUID.
func WithWorkerID(id string) Option {
	return func(q *Queue) {
		if id != "" {
			q.workerID = id
		}
	}
}

// WithConcurrency caps concurrently running handlers.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithBatchSize caps jobs claimed per poll.
func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithPollInterval sets the wait between claims when idle.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithMaxAttempts sets the default attempts for jobs enqueued without one.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithLeaseTimeout sets how long a claimed job may go without a heartbeat
// before another worker may requeue it. Heartbeats run every third of it.
func WithLeaseTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.leaseTimeout = d
		}
	}
}

// WithBackoff sets the retry delay policy.
func WithBackoff(p backoff.Policy) Option {
	return func(q *Queue) { q.backoff = p }
}

// WithWaker wakes the poll loop on enqueue.
func WithWaker(w Waker) Option {
	return func(q *Queue) { q.waker = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics records job outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithTracer traces job execution.
func WithTracer(t *observability.Tracer) Option {
	return func(q *Queue) { q.tracer = t }
}

// Queue claims jobs from a Store and runs their handlers.
type Queue struct {
	store    Store
	now      func() time.Time
	workerID string

	concurrency  int
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
	leaseTimeout time.Duration
	backoff      backoff.Policy

	waker   Waker
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a queue over store.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:        store,
		now:          time.Now,
		workerID:     uuid.NewString(),
		concurrency:  DefaultConcurrency,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		leaseTimeout: DefaultLeaseTimeout,
		backoff:      backoff.DefaultPolicy(),
		logger:       slog.Default(),
		handlers:     make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "queue", "worker_id", q.workerID)
	q.sem = make(chan struct{}, q.concurrency)
	return q
}

// WorkerID returns the id recorded on claimed jobs.
func (q *Queue) WorkerID() string { return q.workerID }

// Store returns the underlying store.
func (q *Queue) Store() Store { return q.store }

// Register sets the handler for jobType, replacing any previous one.
func (q *Queue) Register(jobType string, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType string) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Enqueue adds a job and wakes listening workers.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if req.Type == "" {
		return nil, errors.New("job type is required")
	}
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := q.now()
	job := &Job{
		ID:          req.ID,
		Type:        req.Type,
		WorkspaceID: req.WorkspaceID,
		Payload:     payload,
		MaxAttempts: req.MaxAttempts,
		Status:      StatusQueued,
		AvailableAt: req.AvailableAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.maxAttempts
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	q.metrics.RecordJob(job.Type, "enqueued")
	q.logger.Debug("job enqueued", "job_id", job.ID, "type", job.Type, "available_at", job.AvailableAt)

	if q.waker != nil {
		if err := q.waker.Notify(ctx, job.Type); err != nil {
			q.logger.Warn("wake notify failed", "job_id", job.ID, "error", err)
		}
	}
	return job, nil
}

func encodePayload(p any) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

// Start requeues jobs whose lease expired, then polls for work until Stop is
// called or ctx ends. Leases of claimed jobs are renewed until their
// handlers return, including while Stop drains them.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	if _, err := q.requeueExpired(ctx); err != nil {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	var wake <-chan struct{}
	if q.waker != nil {
		wake = q.waker.Listen(ctx)
	}

	q.logger.Info("starting queue",
		"concurrency", q.concurrency,
		"batch_size", q.batchSize,
		"poll_interval", q.pollInterval,
		"lease_timeout", q.leaseTimeout,
	)
	q.wg.Add(1)
	go q.pollLoop(ctx, wake)

	leaseCtx, stopLeases := context.WithCancel(context.WithoutCancel(ctx))
	go q.leaseLoop(leaseCtx)
	go func() {
		<-ctx.Done()
		q.wg.Wait()
		stopLeases()
	}()
	return nil
}

// Stop stops polling and waits for in-flight handlers, or for ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	q.logger.Info("stopping queue")
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) pollLoop(ctx context.Context, wake <-chan struct{}) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	q.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.poll(ctx)
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			q.poll(ctx)
		}
	}
}

// leaseLoop renews this worker's leases and requeues jobs of workers that
// stopped renewing theirs.
func (q *Queue) leaseLoop(ctx context.Context) {
	ticker := time.NewTicker(q.leaseTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.store.Heartbeat(ctx, q.workerID, q.now()); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to renew job leases", "error", err)
			}
			if _, err := q.requeueExpired(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to requeue expired jobs", "error", err)
			}
		}
	}
}

func (q *Queue) requeueExpired(ctx context.Context) (int, error) {
	now := q.now()
	n, err := q.store.RequeueExpired(ctx, now, now.Add(-q.leaseTimeout))
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	if n > 0 {
		q.logger.Info("requeued jobs with expired leases", "count", n)
	}
	return n, nil
}

func (q *Queue) poll(ctx context.Context) {
	if _, err := q.dispatch(ctx, nil); err != nil && ctx.Err() == nil {
		q.logger.Error("failed to claim jobs", "error", err)
	}
}

// RunOnce claims one batch, runs it and waits for the handlers to finish.
// It returns the number of jobs claimed.
func (q *Queue) RunOnce(ctx context.Context) (int, error) {
	leaseCtx, stopLeases := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLeases()
	go q.leaseLoop(leaseCtx)

	var batch sync.WaitGroup
	n, err := q.dispatch(ctx, &batch)
	batch.Wait()
	return n, err
}

// dispatch claims up to the free concurrency slots and starts a handler
// goroutine per job. Each goroutine is also tracked by batch when non-nil.
func (q *Queue) dispatch(ctx context.Context, batch *sync.WaitGroup) (int, error) {
	limit := q.batchSize
	if free := cap(q.sem) - len(q.sem); free < limit {
		limit = free
	}
	if limit <= 0 {
		return 0, nil
	}

	jobs, err := q.store.Claim(ctx, q.workerID, q.now(), limit)
	if err != nil {
		return 0, err
	}
	q.metrics.RecordClaim(len(jobs))

	for _, job := range jobs {
		q.sem <- struct{}{}
		q.wg.Add(1)
		if batch != nil {
			batch.Add(1)
		}
		go func(job *Job) {
			defer q.wg.Done()
			if batch != nil {
				defer batch.Done()
			}
			defer func() { <-q.sem }()
			q.process(ctx, job)
		}(job)
	}
	return len(jobs), nil
}

// process runs one claimed job. Handlers run on a context detached from
// queue shutdown so a claimed job is never abandoned mid-run.
func (q *Queue) process(ctx context.Context, job *Job) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := q.tracer.TraceJob(ctx, job.ID, job.Type, job.Attempts)
	defer span.End()

	q.metrics.JobStarted()
	defer q.metrics.JobFinished()

	logger := q.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	var err error
	if h, ok := q.handler(job.Type); ok {
		err = q.invoke(ctx, h, job)
	} else {
		err = Permanent(fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}

	now := q.now()
	if err == nil {
		if cerr := q.store.Complete(ctx, job.ID, q.workerID, now); cerr != nil {
			q.logFinishError(logger, "failed to mark job completed", cerr)
			return
		}
		q.metrics.RecordJob(job.Type, string(StatusCompleted))
		logger.Debug("job completed")
		return
	}

	jobErr := &JobError{
		JobID:    job.ID,
		Type:     job.Type,
		Attempt:  job.Attempts,
		Terminal: IsPermanent(err) || job.Attempts >= job.MaxAttempts,
		Err:      err,
	}
	q.tracer.RecordError(span, jobErr)

	var retryAt *time.Time
	outcome := StatusFailed
	if !jobErr.Terminal {
		at := now.Add(q.backoff.Delay(job.Attempts))
		retryAt = &at
		outcome = StatusRetry
	}
	if ferr := q.store.Fail(ctx, job.ID, q.workerID, now, err.Error(), retryAt); ferr != nil {
		q.logFinishError(logger.With("job_error", err), "failed to record job failure", ferr)
		return
	}
	q.metrics.RecordJob(job.Type, string(outcome))
	if jobErr.Terminal {
		logger.Error("job failed", "error", err, "max_attempts", job.MaxAttempts)
	} else {
		logger.Warn("job attempt failed, will retry", "error", err, "retry_at", *retryAt)
	}
}

func (q *Queue) logFinishError(logger *slog.Logger, msg string, err error) {
	if errors.Is(err, ErrLeaseLost) {
		logger.Warn("discarding job result, lease expired", "lease_timeout", q.leaseTimeout)
		return
	}
	logger.Error(msg, "error", err)
}

func (q *Queue) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, job)
}

// Requeue returns running jobs whose lease expired to the queue. Jobs held
// by live workers keep their lease.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	return q.requeueExpired(ctx)
}

// Prune deletes terminal jobs older than age.
func (q *Queue) Prune(ctx context.Context, age time.Duration) (int64, error) {
	return q.store.Prune(ctx, q.now().Add(-age))
}

// Stats returns per-status counts and the number of running handlers.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	counts, err := q.store.Counts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count jobs: %w", err)
	}
	stats := Stats{Counts: make(map[Status]int, len(Statuses)), InFlight: len(q.sem)}
	for _, s := range Statuses {
		stats.Counts[s] = counts[s]
		stats.Total += counts[s]
	}
	return stats, nil
}
