package retryqueue

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/netguru/repolib/pkg/api"
)

// DefaultTable is the table durable SQL queues use when none is given.
const DefaultTable = "repolib_retry_queue"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlDialect holds the statements that differ between SQL backends.
// Every statement has a single %s for the table name.
type sqlDialect struct {
	schema string
	insert string
	remove string
}

var sqliteDialect = sqlDialect{
	schema: `
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			dedup_key TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL
		);`,
	insert: `
		INSERT INTO %s (dedup_key, request_id, kind, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?)`,
	remove: `DELETE FROM %s WHERE dedup_key = ?`,
}

var postgresDialect = sqlDialect{
	schema: `
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			dedup_key TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BYTEA NOT NULL,
			enqueued_at BIGINT NOT NULL
		);`,
	insert: `
		INSERT INTO %s (dedup_key, request_id, kind, payload, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)`,
	remove: `DELETE FROM %s WHERE dedup_key = $1`,
}

// sqlQueue is the database/sql queue shared by SQLiteQueue and
// PostgresQueue. Rows are ordered by an auto-incrementing sequence and
// deduplicated by a UNIQUE dedup_key column. A duplicate is deleted and
// inserted again in one transaction so it picks up a new sequence.
type sqlQueue[T any] struct {
	db    *sql.DB
	table string
	key   KeyFunc[T]
	stmts sqlDialect
}

func newSQLQueue[T any](db *sql.DB, d sqlDialect, table string, key KeyFunc[T]) (*sqlQueue[T], error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("retryqueue: invalid table name %q", table)
	}
	q := &sqlQueue[T]{
		db:    db,
		table: table,
		key:   keyFuncOrDefault(key),
		stmts: sqlDialect{
			schema: fmt.Sprintf(d.schema, table),
			insert: fmt.Sprintf(d.insert, table),
			remove: fmt.Sprintf(d.remove, table),
		},
	}
	if _, err := db.Exec(q.stmts.schema); err != nil {
		return nil, fmt.Errorf("retryqueue: create table %s: %w", table, err)
	}
	return q, nil
}

func (q *sqlQueue[T]) Key(r api.Request[T]) string { return q.key(r) }

func (q *sqlQueue[T]) Add(ctx context.Context, r api.Request[T]) (bool, error) {
	if err := checkQueueable(r); err != nil {
		return false, err
	}
	payload, err := encodeRequest(r)
	if err != nil {
		return false, err
	}
	k := q.key(r)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, q.stmts.remove, k)
	if err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	replaced, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, q.stmts.insert,
		k,
		r.ID(),
		string(r.Kind()),
		payload,
		time.Now().UnixNano(),
	); err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("retryqueue: add %s: %w", r.ID(), err)
	}
	return replaced == 0, nil
}

func (q *sqlQueue[T]) Remove(ctx context.Context, r api.Request[T]) error {
	if _, err := q.db.ExecContext(ctx, q.stmts.remove, q.key(r)); err != nil {
		return fmt.Errorf("retryqueue: remove %s: %w", r.ID(), err)
	}
	return nil
}

func (q *sqlQueue[T]) List(ctx context.Context) ([]api.Request[T], error) {
	rows, err := q.db.QueryContext(ctx, `SELECT payload FROM `+q.table+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("retryqueue: list: %w", err)
	}
	defer rows.Close()

	var out []api.Request[T]
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		r, err := decodeRequest[T](payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *sqlQueue[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	return n == 0, err
}

func (q *sqlQueue[T]) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("retryqueue: count: %w", err)
	}
	return n, nil
}

// SQLiteQueue is a durable queue stored in a SQLite table.
//
// It expects an *sql.DB opened with the "sqlite" driver from
// modernc.org/sqlite; the caller imports the driver.
type SQLiteQueue[T any] struct {
	*sqlQueue[T]
}

var _ Queue[string] = (*SQLiteQueue[string])(nil)

// NewSQLiteQueue creates the queue table if needed. An empty table selects
// DefaultTable and a nil key selects KeyByContent.
func NewSQLiteQueue[T any](db *sql.DB, table string, key KeyFunc[T]) (*SQLiteQueue[T], error) {
	q, err := newSQLQueue(db, sqliteDialect, table, key)
	if err != nil {
		return nil, err
	}
	return &SQLiteQueue[T]{q}, nil
}

// PostgresQueue is a durable queue stored in a PostgreSQL table.
//
// It expects an *sql.DB that uses a PostgreSQL driver, for example
// "github.com/jackc/pgx/v5/stdlib".
type PostgresQueue[T any] struct {
	*sqlQueue[T]
}

var _ Queue[string] = (*PostgresQueue[string])(nil)

// NewPostgresQueue creates the queue table if needed.
func NewPostgresQueue[T any](db *sql.DB, table string, key KeyFunc[T]) (*PostgresQueue[T], error) {
	q, err := newSQLQueue(db, postgresDialect, table, key)
	if err != nil {
		return nil, err
	}
	return &PostgresQueue[T]{q}, nil
}
