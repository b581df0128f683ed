package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/agentcore/internal/backoff"
	"github.com/haasonsaas/agentcore/internal/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var testBackoff = backoff.Policy{Initial: time.Second, Max: time.Minute, Factor: 2}

func newTestQueue(t *testing.T, clock *fakeClock, opts ...Option) (*Queue, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := []Option{WithClock(clock.Now), WithBackoff(testBackoff), WithWorkerID("worker-1")}
	return New(store, append(base, opts...)...), store
}

func TestQueueRetriesWithIncreasingDelayThenFails(t *testing.T) {
	clock := newFakeClock()
	q, store := newTestQueue(t, clock)
	ctx := context.Background()

	var calls atomic.Int32
	q.Register("flaky", func(context.Context, *Job) error {
		n := calls.Add(1)
		return errors.New("attempt failed " + string(rune('0'+n)))
	})

	job, err := q.Enqueue(ctx, EnqueueRequest{Type: "flaky", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		n, err := q.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
		if n != 1 {
			t.Fatalf("attempt %d claimed %d jobs, want 1", attempt, n)
		}
		got, err := store.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Attempts != attempt {
			t.Fatalf("attempts = %d, want %d", got.Attempts, attempt)
		}
		if attempt < 3 {
			if got.Status != StatusRetry {
				t.Fatalf("status after attempt %d = %s, want retry", attempt, got.Status)
			}
			delays = append(delays, got.AvailableAt.Sub(clock.Now()))

			// Not due yet.
			if n, _ := q.RunOnce(ctx); n != 0 {
				t.Fatalf("claimed %d jobs before retry delay elapsed", n)
			}
			clock.Set(got.AvailableAt)
			continue
		}
		if got.Status != StatusFailed {
			t.Fatalf("final status = %s, want failed", got.Status)
		}
		if got.LastError != "attempt failed 3" {
			t.Errorf("last error = %q", got.LastError)
		}
		if got.FinishedAt == nil {
			t.Error("finished_at not set")
		}
	}

	if len(delays) != 2 || delays[1] <= delays[0] {
		t.Errorf("retry delays = %v, want strictly increasing", delays)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
}

func TestQueueCompletesJob(t *testing.T) {
	clock := newFakeClock()
	q, store := newTestQueue(t, clock)
	ctx := context.Background()

	var got struct {
		TaskID string `json:"task_id"`
	}
	q.Register("echo", func(_ context.Context, job *Job) error {
		return job.Decode(&got)
	})
	job, err := q.Enqueue(ctx, EnqueueRequest{Type: "echo", WorkspaceID: "ws-1", Payload: map[string]string{"task_id": "t-1"}})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	stored, _ := store.Get(ctx, job.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if got.TaskID != "t-1" {
		t.Errorf("payload task id = %q", got.TaskID)
	}
}

func TestQueueTerminalFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		wantErr error
	}{
		{name: "unknown type", wantErr: ErrUnknownJobType},
		{
			name:    "permanent error",
			handler: func(context.Context, *Job) error { return Permanent(errors.New("bad payload")) },
		},
		{
			name:    "panic on last attempt",
			handler: func(context.Context, *Job) error { panic("boom") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			q, store := newTestQueue(t, clock)
			ctx := context.Background()
			if tt.handler != nil {
				q.Register("work", tt.handler)
			}
			maxAttempts := 3
			if tt.name == "panic on last attempt" {
				maxAttempts = 1
			}
			job, err := q.Enqueue(ctx, EnqueueRequest{Type: "work", MaxAttempts: maxAttempts})
			if err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
			if _, err := q.RunOnce(ctx); err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}
			stored, _ := store.Get(ctx, job.ID)
			if stored.Status != StatusFailed {
				t.Fatalf("status = %s, want failed", stored.Status)
			}
			if stored.LastError == "" {
				t.Error("last error not retained")
			}
		})
	}
}

func TestQueueRespectsConcurrency(t *testing.T) {
	clock := newFakeClock()
	q, _ := newTestQueue(t, clock, WithConcurrency(2), WithBatchSize(10))
	ctx := context.Background()

	var active, peak atomic.Int32
	release := make(chan struct{})
	q.Register("slow", func(context.Context, *Job) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	})
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(ctx, EnqueueRequest{Type: "slow"}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	done := make(chan int)
	go func() {
		n, _ := q.RunOnce(ctx)
		done <- n
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	if n := <-done; n != 2 {
		t.Errorf("claimed %d jobs, want 2", n)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestQueueStats(t *testing.T) {
	clock := newFakeClock()
	q, _ := newTestQueue(t, clock)
	ctx := context.Background()
	q.Register("ok", func(context.Context, *Job) error { return nil })

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, EnqueueRequest{Type: "ok"}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{Type: "ok", AvailableAt: clock.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Counts[StatusCompleted] != 3 || stats.Counts[StatusQueued] != 1 || stats.Total != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := stats.Counts[StatusRetry]; !ok {
		t.Error("every status should be present in counts")
	}
}

func TestQueueStartRequeuesAndWakes(t *testing.T) {
	clock := newFakeClock()
	waker := NewChannelWaker()
	q, store := newTestQueue(t, clock, WithWaker(waker), WithPollInterval(time.Hour))
	ctx := context.Background()

	// A job left running by a crashed worker.
	stale := &Job{ID: "stale", Type: "ok", Status: StatusQueued, MaxAttempts: 3, AvailableAt: clock.Now(), CreatedAt: clock.Now()}
	if err := store.Enqueue(ctx, stale); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := store.Claim(ctx, "dead-worker", clock.Now(), 1); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	clock.Set(clock.Now().Add(DefaultLeaseTimeout + time.Second))

	processed := make(chan string, 4)
	q.Register("ok", func(_ context.Context, job *Job) error {
		processed <- job.ID
		return nil
	})

	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := q.Stop(stopCtx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	}()

	waitFor := func(id string) {
		t.Helper()
		select {
		case got := <-processed:
			if got != id {
				t.Fatalf("processed %q, want %q", got, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", id)
		}
	}
	waitFor("stale")

	if _, err := q.Enqueue(ctx, EnqueueRequest{ID: "fresh", Type: "ok"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor("fresh")
}

func TestQueueStartLeavesLiveLeasesAlone(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	ctx := context.Background()
	base := []Option{WithClock(clock.Now), WithBackoff(testBackoff), WithPollInterval(time.Hour), WithLeaseTimeout(time.Minute)}

	var runs atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	handler := func(context.Context, *Job) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}

	workerA := New(store, append(base, WithWorkerID("worker-a"))...)
	workerA.Register("slow", handler)
	workerB := New(store, append(base, WithWorkerID("worker-b"))...)
	workerB.Register("slow", handler)

	if _, err := workerA.Enqueue(ctx, EnqueueRequest{ID: "job-1", Type: "slow"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := workerA.Start(ctx); err != nil {
		t.Fatalf("worker-a Start() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker-a to start the job")
	}

	clock.Set(clock.Now().Add(30 * time.Second))
	if err := workerB.Start(ctx); err != nil {
		t.Fatalf("worker-b Start() error = %v", err)
	}
	if n, err := workerB.Requeue(ctx); err != nil || n != 0 {
		t.Fatalf("Requeue() = %d, %v, want 0 live jobs requeued", n, err)
	}
	if n, err := workerB.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("worker-b RunOnce() = %d, %v, want nothing to claim", n, err)
	}

	close(release)
	for _, q := range []*Queue{workerA, workerB} {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := q.Stop(stopCtx); err != nil {
			t.Errorf("Stop(%s) error = %v", q.WorkerID(), err)
		}
		cancel()
	}

	if got := runs.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
}

func TestQueueDiscardsResultAfterLeaseLost(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	ctx := context.Background()
	base := []Option{WithClock(clock.Now), WithBackoff(testBackoff), WithLeaseTimeout(time.Minute)}

	stale := New(store, append(base, WithWorkerID("worker-a"))...)
	fresh := New(store, append(base, WithWorkerID("worker-b"))...)

	var staleRuns, freshRuns atomic.Int32
	stale.Register("report", func(context.Context, *Job) error {
		staleRuns.Add(1)
		// The worker stalls past its lease and the job moves to worker-b.
		clock.Set(clock.Now().Add(2 * time.Minute))
		if n, err := fresh.Requeue(ctx); err != nil || n != 1 {
			t.Errorf("Requeue() = %d, %v, want 1", n, err)
		}
		if n, err := fresh.RunOnce(ctx); err != nil || n != 1 {
			t.Errorf("worker-b RunOnce() = %d, %v, want 1", n, err)
		}
		return errors.New("late failure")
	})
	fresh.Register("report", func(context.Context, *Job) error {
		freshRuns.Add(1)
		return nil
	})

	if _, err := stale.Enqueue(ctx, EnqueueRequest{ID: "job-1", Type: "report"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if n, err := stale.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("worker-a RunOnce() = %d, %v", n, err)
	}

	if staleRuns.Load() != 1 || freshRuns.Load() != 1 {
		t.Fatalf("runs = %d/%d, want 1/1", staleRuns.Load(), freshRuns.Load())
	}
	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusCompleted || job.LastError != "" {
		t.Errorf("job = %+v, want completed by worker-b", job)
	}
}

func TestQueueEnqueueDefaults(t *testing.T) {
	clock := newFakeClock()
	q, _ := newTestQueue(t, clock, WithMaxAttempts(7))
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, EnqueueRequest{}); err == nil {
		t.Fatal("expected error for missing type")
	}
	job, err := q.Enqueue(ctx, EnqueueRequest{ID: "j1", Type: "x", Payload: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.MaxAttempts != 7 || !job.AvailableAt.Equal(clock.Now()) || string(job.Payload) != `{"a":1}` {
		t.Errorf("job = %+v", job)
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{ID: "j1", Type: "x"}); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("duplicate error = %v", err)
	}
}

func TestQueueMetrics(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	q, _ := newTestQueue(t, clock, WithMetrics(metrics))
	ctx := context.Background()
	q.Register("ok", func(context.Context, *Job) error { return nil })

	if _, err := q.Enqueue(ctx, EnqueueRequest{Type: "ok"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if got := testutil.ToFloat64(metrics.QueueJobs.WithLabelValues("ok", "completed")); got != 1 {
		t.Errorf("completed jobs metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.QueueInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestJobError(t *testing.T) {
	base := errors.New("boom")
	err := &JobError{JobID: "j1", Type: "t", Attempt: 2, Terminal: true, Err: base}
	if !errors.Is(err, base) {
		t.Error("JobError should unwrap")
	}
	if err.ErrorKind() != "queue_error" {
		t.Errorf("kind = %q", err.ErrorKind())
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if !IsPermanent(Permanent(base)) || IsPermanent(base) {
		t.Error("IsPermanent mismatch")
	}
}
