package retryqueue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/netguru/repolib/pkg/api"
)

// RedisQueue is a durable queue stored in Redis.
// It uses a simple key structure:
//
//	<prefix>retry:payload  => HASH dedup key -> gob-encoded request
//	<prefix>retry:order    => ZSET of dedup keys scored by insertion sequence
//	<prefix>retry:seq      => insertion sequence counter
type RedisQueue[T any] struct {
	client *redis.Client
	prefix string
	key    KeyFunc[T]
}

var _ Queue[string] = (*RedisQueue[string])(nil)

// addScript stores the payload under a fresh sequence number. ZADD on a
// queued key only updates its score, which moves it to the back.
var addScript = redis.NewScript(`
local added = redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
return added
`)

// NewRedisQueue creates a RedisQueue.
// prefix is optional but recommended (e.g. "repolib:"). A nil key selects
// KeyByContent.
func NewRedisQueue[T any](client *redis.Client, prefix string, key KeyFunc[T]) *RedisQueue[T] {
	if prefix == "" {
		prefix = "repolib:"
	}
	return &RedisQueue[T]{
		client: client,
		prefix: prefix,
		key:    keyFuncOrDefault(key),
	}
}

func (q *RedisQueue[T]) keyPayload() string { return q.prefix + "retry:payload" }
func (q *RedisQueue[T]) keyOrder() string   { return q.prefix + "retry:order" }
func (q *RedisQueue[T]) keySeq() string     { return q.prefix + "retry:seq" }

func (q *RedisQueue[T]) Key(r api.Request[T]) string { return q.key(r) }

func (q *RedisQueue[T]) Add(ctx context.Context, r api.Request[T]) (bool, error) {
	if err := checkQueueable(r); err != nil {
		return false, err
	}
	payload, err := encodeRequest(r)
	if err != nil {
		return false, err
	}
	n, err := addScript.Run(ctx, q.client,
		[]string{q.keyPayload(), q.keyOrder(), q.keySeq()},
		q.key(r), payload,
	).Int()
	if err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	return n == 1, nil
}

func (q *RedisQueue[T]) Remove(ctx context.Context, r api.Request[T]) error {
	k := q.key(r)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.keyOrder(), k)
		pipe.HDel(ctx, q.keyPayload(), k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("retryqueue: remove %s: %w", r.ID(), err)
	}
	return nil
}

func (q *RedisQueue[T]) List(ctx context.Context) ([]api.Request[T], error) {
	keys, err := q.client.ZRange(ctx, q.keyOrder(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("retryqueue: list: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := q.client.HMGet(ctx, q.keyPayload(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("retryqueue: list: %w", err)
	}

	out := make([]api.Request[T], 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// removed between ZRANGE and HMGET
			continue
		}
		r, err := decodeRequest[T]([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *RedisQueue[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	return n == 0, err
}

func (q *RedisQueue[T]) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.keyOrder()).Result()
	if err != nil {
		return 0, fmt.Errorf("retryqueue: count: %w", err)
	}
	return int(n), nil
}
