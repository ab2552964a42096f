// Package mongo provides MongoDB-backed data sources and retry queues.
package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/internal/persistence"
	"github.com/netguru/repolib/internal/retryqueue"
)

// NewSource returns a DataSource stored in dbName.collName. Empty names
// select "repolib" and "entities".
func NewSource[T any](client *mongo.Client, dbName, collName string, id repolib.IDFunc[T]) repolib.DataSource[T] {
	return persistence.NewMongoSource(client, dbName, collName, id)
}

// NewQueue returns a durable retry queue stored in dbName.collName. Empty
// names select "repolib" and "retry_queue"; a nil key selects
// repolib.KeyByContent.
func NewQueue[T any](client *mongo.Client, dbName, collName string, key repolib.KeyFunc[T]) repolib.Queue[T] {
	return retryqueue.NewMongoQueue(client, dbName, collName, key)
}

// NewEngine returns an Engine that mirrors a MongoDB-backed remote into
// local, using the default database and collection names.
func NewEngine[T any](client *mongo.Client, local repolib.DataSource[T], id repolib.IDFunc[T]) (repolib.Engine[T], error) {
	return NewEngineWithObserver(client, local, id, nil)
}

// NewEngineWithObserver is NewEngine with an Observer attached to both the
// engine and the remote controller.
func NewEngineWithObserver[T any](client *mongo.Client, local repolib.DataSource[T], id repolib.IDFunc[T], obs repolib.Observer) (repolib.Engine[T], error) {
	ctrl, _, err := repolib.NewGuardedController(
		NewSource(client, "", "", id),
		nil,
		repolib.BreakerConfig{Name: "mongo"},
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
