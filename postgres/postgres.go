// Package postgres provides PostgreSQL-backed data sources and retry queues.
//
// Entities are stored as JSONB; the pgx stdlib driver is registered as
// "pgx" by importing this package.
package postgres

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/internal/persistence"
	"github.com/netguru/repolib/internal/retryqueue"
)

// Open opens a connection pool for dsn with the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// NewSource returns a DataSource stored in table, creating it if needed.
// An empty table selects "repolib_entities".
func NewSource[T any](db *sql.DB, table string, id repolib.IDFunc[T]) (repolib.DataSource[T], error) {
	s, err := persistence.NewPostgresSource(db, table, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewQueue returns a durable retry queue stored in table. An empty table
// selects "repolib_retry_queue" and a nil key selects repolib.KeyByContent.
func NewQueue[T any](db *sql.DB, table string, key repolib.KeyFunc[T]) (repolib.Queue[T], error) {
	q, err := retryqueue.NewPostgresQueue(db, table, key)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewEngine returns an Engine that mirrors a PostgreSQL-backed remote into
// local.
func NewEngine[T any](db *sql.DB, local repolib.DataSource[T], id repolib.IDFunc[T]) (repolib.Engine[T], error) {
	return NewEngineWithObserver(db, local, id, nil)
}

// NewEngineWithObserver is NewEngine with an Observer attached to both the
// engine and the remote controller.
func NewEngineWithObserver[T any](db *sql.DB, local repolib.DataSource[T], id repolib.IDFunc[T], obs repolib.Observer) (repolib.Engine[T], error) {
	remote, err := NewSource(db, "", id)
	if err != nil {
		return nil, err
	}
	ctrl, _, err := repolib.NewGuardedController(remote, nil,
		repolib.BreakerConfig{Name: "postgres"},
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
