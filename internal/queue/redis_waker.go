package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWakerConfig configures a RedisWaker.
type RedisWakerConfig struct {
	Address  string
	Password string
	DB       int

	// Key is the Redis list used for signals. Default: "agentcore:queue:wake".
	Key string

	// BlockWait bounds each BRPOP. Default: 5s.
	BlockWait time.Duration

	Logger *slog.Logger
}

// RedisWaker signals workers across processes through a Redis list:
// Notify pushes, listeners pop with BRPOP.
type RedisWaker struct {
	client *redis.Client
	key    string
	wait   time.Duration
	logger *slog.Logger
}

// NewRedisWaker connects to Redis.
func NewRedisWaker(cfg RedisWakerConfig) (*RedisWaker, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newRedisWaker(client, cfg), nil
}

func newRedisWaker(client *redis.Client, cfg RedisWakerConfig) *RedisWaker {
	key := cfg.Key
	if key == "" {
		key = "agentcore:queue:wake"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWaker{
		client: client,
		key:    key,
		wait:   wait,
		logger: logger.With("component", "queue-waker", "backend", "redis"),
	}
}

// Notify pushes a signal onto the list.
func (w *RedisWaker) Notify(ctx context.Context, jobType string) error {
	if err := w.client.LPush(ctx, w.key, jobType).Err(); err != nil {
		return fmt.Errorf("redis notify: %w", err)
	}
	return nil
}

// Listen pops signals until ctx ends.
func (w *RedisWaker) Listen(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			values, err := w.client.BRPop(ctx, w.wait, w.key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				w.logger.Warn("redis wake pop failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.wait):
				}
				continue
			}
			if len(values) == 2 {
				signal(out)
			}
		}
	}()
	return out
}

// Close closes the Redis client.
func (w *RedisWaker) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.Close()
}
