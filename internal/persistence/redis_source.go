package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/netguru/repolib/pkg/api"
)

// RedisSource is a DataSource backed by Redis.
// It uses a simple key structure:
//
//	<prefix>ent:<id>     => JSON-encoded entity
//	<prefix>idx:order    => ZSET of ids scored by insertion sequence
//	<prefix>idx:seq      => insertion sequence counter
//
// Parameter queries are evaluated in process over the ordered index.
type RedisSource[T any] struct {
	client *redis.Client
	prefix string
	id     api.IDFunc[T]
}

var _ api.DataSource[map[string]any] = (*RedisSource[map[string]any])(nil)

// upsertScript writes the entity and gives new ids a place in the order.
var upsertScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[2])
if redis.call('ZSCORE', KEYS[2], ARGV[1]) == false then
	local seq = redis.call('INCR', KEYS[3])
	redis.call('ZADD', KEYS[2], seq, ARGV[1])
end
return 1
`)

// NewRedisSource creates a RedisSource.
// prefix is optional but recommended (e.g. "repolib:").
func NewRedisSource[T any](client *redis.Client, prefix string, id api.IDFunc[T]) *RedisSource[T] {
	if prefix == "" {
		prefix = "repolib:"
	}
	return &RedisSource[T]{client: client, prefix: prefix, id: id}
}

func (s *RedisSource[T]) keyEntity(id string) string { return s.prefix + "ent:" + id }
func (s *RedisSource[T]) keyOrder() string           { return s.prefix + "idx:order" }
func (s *RedisSource[T]) keySeq() string             { return s.prefix + "idx:seq" }

func (s *RedisSource[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)
		err = upsertScript.Run(ctx, s.client,
			[]string{s.keyEntity(id), s.keyOrder(), s.keySeq()},
			id, data,
		).Err()
		if err != nil {
			yield(zero, fmt.Errorf("persistence: create %q: %w", id, err))
			return
		}
		yield(entity, nil)
	}
}

func (s *RedisSource[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)
		ok, err := s.client.SetXX(ctx, s.keyEntity(id), data, 0).Result()
		if err != nil {
			yield(zero, fmt.Errorf("persistence: update %q: %w", id, err))
			return
		}
		if !ok {
			yield(zero, notFound(id))
			return
		}
		yield(entity, nil)
	}
}

type redisDoc struct {
	id   string
	data []byte
}

// find returns the stored documents matching q in insertion order.
func (s *RedisSource[T]) find(ctx context.Context, q api.Query) ([]redisDoc, error) {
	match, err := docMatcher(q)
	if err != nil {
		return nil, err
	}

	var ids []string
	if byID, ok := q.(api.IDQuery); ok {
		ids = []string{byID.ID}
	} else {
		ids, err = s.client.ZRange(ctx, s.keyOrder(), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("persistence: read index: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keyEntity(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("persistence: read entities: %w", err)
	}

	var out []redisDoc
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if match(ids[i], []byte(str)) {
			out = append(out, redisDoc{id: ids[i], data: []byte(str)})
		}
	}
	return out, nil
}

func (s *RedisSource[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		docs, err := s.find(ctx, q)
		if err != nil {
			yield(zero, err)
			return
		}
		if len(docs) > 0 {
			_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, d := range docs {
					pipe.Del(ctx, s.keyEntity(d.id))
					pipe.ZRem(ctx, s.keyOrder(), d.id)
				}
				return nil
			})
			if err != nil {
				yield(zero, fmt.Errorf("persistence: delete: %w", err))
				return
			}
		}
		emitDocs[T](docs, yield)
	}
}

func (s *RedisSource[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		docs, err := s.find(ctx, q)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		emitDocs[T](docs, yield)
	}
}

func emitDocs[T any](docs []redisDoc, yield func(T, error) bool) {
	for _, d := range docs {
		v, err := decodeEntity[T](d.data)
		if err != nil {
			yield(v, err)
			return
		}
		if !yield(v, nil) {
			return
		}
	}
}
