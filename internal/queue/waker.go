package queue

import (
	"context"
	"sync"
)

// Waker shortens the poll wait when jobs are enqueued. Signals are hints;
// the poll interval still bounds latency when a signal is lost.
type Waker interface {
	// Notify signals that a job of jobType was enqueued.
	Notify(ctx context.Context, jobType string) error

	// Listen returns a channel that receives a value per signal. The
	// channel is closed when ctx ends.
	Listen(ctx context.Context) <-chan struct{}

	Close() error
}

// ChannelWaker signals workers in the same process.
type ChannelWaker struct {
	mu        sync.Mutex
	listeners []chan struct{}
}

// NewChannelWaker creates an in-process waker.
func NewChannelWaker() *ChannelWaker {
	return &ChannelWaker{}
}

// Notify wakes every listener without blocking.
func (w *ChannelWaker) Notify(_ context.Context, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Listen registers a listener until ctx ends.
func (w *ChannelWaker) Listen(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.listeners = append(w.listeners, ch)
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, l := range w.listeners {
			if l == ch {
				w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// Close is a no-op.
func (w *ChannelWaker) Close() error { return nil }

// signal delivers to out without blocking; pending signals coalesce.
func signal(out chan<- struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}
