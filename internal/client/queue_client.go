package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// WorkQueue is a durable FIFO of serialized job descriptors.
//
// Pop moves the entry into a per-consumer processing list; it stays there
// until the consumer calls Ack or DeadLetter. Recover returns whatever a
// crashed consumer left behind to the queue.
type WorkQueue interface {
	Push(ctx context.Context, raw []byte) error
	Pop(ctx context.Context, consumer string) (string, error)
	Ack(ctx context.Context, consumer, raw string) error
	DeadLetter(ctx context.Context, consumer, raw string) error
	Recover(ctx context.Context, consumer string) (int, error)
	Peek(ctx context.Context) ([]string, error)
	PeekDead(ctx context.Context) ([]string, error)
}

// ErrQueueEmpty is returned by Pop when a bounded wait elapsed
var ErrQueueEmpty = errors.New("queue empty")

// IntentJournal records submissions before their side effects happen so an
// interrupted submission can be finished later.
type IntentJournal interface {
	Intend(ctx context.Context, raw []byte) error
	Settle(ctx context.Context, raw []byte) error
	StaleIntents(ctx context.Context, before time.Time) ([]string, error)
}

// RedisQueue implements WorkQueue on redis lists.
// Producers LPUSH, consumers BRPOPLPUSH, so the oldest entry is popped first.
type RedisQueue struct {
	redis        redis.UniversalClient
	name         string
	blockTimeout time.Duration
}

func NewRedisQueue(redisClient redis.UniversalClient, name string) *RedisQueue {
	return &RedisQueue{redis: redisClient, name: name}
}

// WithBlockTimeout bounds each Pop so callers can observe shutdown between
// waits. Zero blocks until an entry arrives.
func (q *RedisQueue) WithBlockTimeout(d time.Duration) *RedisQueue {
	q.blockTimeout = d
	return q
}

// Name returns the queue list key
func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) processingKey(consumer string) string {
	return fmt.Sprintf("%s:processing:%s", q.name, consumer)
}

func (q *RedisQueue) deadKey() string {
	return q.name + ":dead"
}

func (q *RedisQueue) intentKey() string {
	return q.name + ":intents"
}

// Push enqueues a serialized descriptor
func (q *RedisQueue) Push(ctx context.Context, raw []byte) error {
	if err := q.redis.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.name, err)
	}
	return nil
}

// Pop blocks until an entry is available
func (q *RedisQueue) Pop(ctx context.Context, consumer string) (string, error) {
	raw, err := q.redis.BRPopLPush(ctx, q.name, q.processingKey(consumer), q.blockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop from %s: %w", q.name, err)
	}
	return raw, nil
}

// Ack drops a finished entry from the consumer's processing list
func (q *RedisQueue) Ack(ctx context.Context, consumer, raw string) error {
	if err := q.redis.LRem(ctx, q.processingKey(consumer), 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack: %w", err)
	}
	return nil
}

// DeadLetter parks a failed entry for inspection; it is never redelivered
func (q *RedisQueue) DeadLetter(ctx context.Context, consumer, raw string) error {
	_, err := q.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.deadKey(), raw)
		pipe.LRem(ctx, q.processingKey(consumer), 1, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter: %w", err)
	}
	return nil
}

// Recover moves entries left in the consumer's processing list back to the
// pop end of the queue, so they are served before anything pushed since.
// Entries are moved newest first, which leaves the oldest at the very head.
func (q *RedisQueue) Recover(ctx context.Context, consumer string) (int, error) {
	recovered := 0
	for {
		err := q.redis.LMove(ctx, q.processingKey(consumer), q.name, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover %s: %w", consumer, err)
		}
		recovered++
	}
}

// Peek returns a snapshot of the queue, newest entry first
func (q *RedisQueue) Peek(ctx context.Context) ([]string, error) {
	return q.lrange(ctx, q.name)
}

// PeekDead returns a snapshot of the dead-letter list
func (q *RedisQueue) PeekDead(ctx context.Context) ([]string, error) {
	return q.lrange(ctx, q.deadKey())
}

// Intend journals a descriptor scored by the current time
func (q *RedisQueue) Intend(ctx context.Context, raw []byte) error {
	member := redis.Z{Score: float64(time.Now().Unix()), Member: string(raw)}
	if err := q.redis.ZAdd(ctx, q.intentKey(), member).Err(); err != nil {
		return fmt.Errorf("failed to journal intent: %w", err)
	}
	return nil
}

// Settle removes a journaled descriptor
func (q *RedisQueue) Settle(ctx context.Context, raw []byte) error {
	if err := q.redis.ZRem(ctx, q.intentKey(), string(raw)).Err(); err != nil {
		return fmt.Errorf("failed to settle intent: %w", err)
	}
	return nil
}

// StaleIntents returns descriptors journaled before the given time
func (q *RedisQueue) StaleIntents(ctx context.Context, before time.Time) ([]string, error) {
	items, err := q.redis.ZRangeByScore(ctx, q.intentKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read intents: %w", err)
	}
	return items, nil
}

func (q *RedisQueue) lrange(ctx context.Context, key string) ([]string, error) {
	items, err := q.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return items, nil
}
