package taskqueue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter admits task executions at a per-task rate.
type Limiter interface {
	Wait(ctx context.Context, task string, perSecond float64) error
}

// LocalLimiter spaces executions of each task evenly within the process.
type LocalLimiter struct {
	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{next: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLimiter) Wait(ctx context.Context, task string, perSecond float64) error {
	if perSecond <= 0 {
		return nil
	}

	interval := time.Duration(float64(time.Second) / perSecond)

	l.mu.Lock()
	now := l.now()

	slot := l.next[task]
	if slot.Before(now) {
		slot = now
	}

	l.next[task] = slot.Add(interval)
	l.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const redisRatePrefix = "geoimporter:rate:"

// RedisLimiter shares a fixed one-second window per task between every worker.
type RedisLimiter struct {
	client redis.UniversalClient
	poll   time.Duration
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, poll: 50 * time.Millisecond}
}

func (l *RedisLimiter) Wait(ctx context.Context, task string, perSecond float64) error {
	if perSecond <= 0 {
		return nil
	}

	limit := int64(perSecond)
	if limit < 1 {
		limit = 1
	}

	for {
		window := time.Now().Unix()
		key := redisRatePrefix + task + ":" + strconv.FormatInt(window, 10)

		var count *redis.IntCmd

		_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			count = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, 2*time.Second)

			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to apply rate limit for %s: %w", task, err)
		}

		if count.Val() <= limit {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
