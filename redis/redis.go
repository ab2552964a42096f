// Package redis provides Redis-backed data sources and retry queues.
package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/internal/persistence"
	"github.com/netguru/repolib/internal/retryqueue"
)

// NewSource returns a DataSource storing entities under prefix. An empty
// prefix selects "repolib:".
func NewSource[T any](client *redis.Client, prefix string, id repolib.IDFunc[T]) repolib.DataSource[T] {
	return persistence.NewRedisSource(client, prefix, id)
}

// NewQueue returns a durable retry queue stored under prefix. A nil key
// selects repolib.KeyByContent.
func NewQueue[T any](client *redis.Client, prefix string, key repolib.KeyFunc[T]) repolib.Queue[T] {
	return retryqueue.NewRedisQueue(client, prefix, key)
}

// NewEngine returns an Engine that mirrors a Redis-backed remote into local.
func NewEngine[T any](client *redis.Client, local repolib.DataSource[T], id repolib.IDFunc[T]) (repolib.Engine[T], error) {
	return NewEngineWithObserver(client, local, id, nil)
}

// NewEngineWithObserver is NewEngine with an Observer attached to both the
// engine and the remote controller.
//
// Writes issued while Redis is unreachable are buffered in memory and
// replayed on the next write once the breaker admits requests again.
func NewEngineWithObserver[T any](client *redis.Client, local repolib.DataSource[T], id repolib.IDFunc[T], obs repolib.Observer) (repolib.Engine[T], error) {
	ctrl, _, err := repolib.NewGuardedController(
		NewSource(client, "", id),
		nil,
		repolib.BreakerConfig{Name: "redis"},
		repolib.ControllerOptions{Observer: obs},
	)
	if err != nil {
		return nil, err
	}

	b := repolib.NewEngine[T]().Local(local).Remote(ctrl)
	if obs != nil {
		b.Observer(obs)
	}
	return b.Build()
}
