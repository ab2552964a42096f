package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/netguru/repolib/pkg/api"
)

// DefaultTable is the table SQL sources use when none is given.
const DefaultTable = "repolib_entities"

// sqlDialect holds what differs between SQL backends. Statements carry a
// single %s for the table name.
type sqlDialect struct {
	schema string
	upsert string
	update string

	placeholder func(n int) string
	// param renders the condition comparing one top-level JSON field, using
	// placeholders n and n+1, and converts the bound values.
	param func(n int, name string, value any) (string, []any)
}

var sqliteDialect = sqlDialect{
	schema: `
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			body TEXT NOT NULL
		);`,
	upsert: `
		INSERT INTO %s (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
	update:      `UPDATE %s SET body = ? WHERE id = ?`,
	placeholder: func(int) string { return "?" },
	param: func(_ int, name string, value any) (string, []any) {
		return "json_extract(body, ?) = ?", []any{"$." + name, value}
	},
}

var postgresDialect = sqlDialect{
	schema: `
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			body JSONB NOT NULL
		);`,
	upsert: `
		INSERT INTO %s (id, body) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body`,
	update:      `UPDATE %s SET body = $1::jsonb WHERE id = $2`,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	param: func(n int, name string, value any) (string, []any) {
		// ->> yields text, so compare against the value's text form.
		return fmt.Sprintf("body->>$%d = $%d", n, n+1), []any{name, fmt.Sprint(value)}
	},
}

// sqlSource is the database/sql DataSource shared by SQLiteSource and
// PostgresSource.
type sqlSource[T any] struct {
	db    *sql.DB
	table string
	id    api.IDFunc[T]
	d     sqlDialect
}

func newSQLSource[T any](db *sql.DB, d sqlDialect, table string, id api.IDFunc[T]) (*sqlSource[T], error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("persistence: invalid table name %q", table)
	}
	s := &sqlSource[T]{db: db, table: table, id: id, d: d}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlSource[T]) initSchema() error {
	if _, err := s.db.Exec(fmt.Sprintf(s.d.schema, s.table)); err != nil {
		return fmt.Errorf("persistence: create table %s: %w", s.table, err)
	}
	return nil
}

// where translates q into a WHERE clause (empty for match-all).
func (s *sqlSource[T]) where(q api.Query) (string, []any, error) {
	switch q := q.(type) {
	case api.AllQuery:
		return "", nil, nil
	case api.IDQuery:
		return " WHERE id = " + s.d.placeholder(1), []any{q.ID}, nil
	case api.ParamsQuery:
		if err := checkParamNames(q.Params); err != nil {
			return "", nil, err
		}
		if len(q.Params) == 0 {
			return "", nil, nil
		}
		var (
			conds []string
			args  []any
		)
		for _, name := range slices.Sorted(maps.Keys(q.Params)) {
			cond, a := s.d.param(len(args)+1, name, q.Params[name])
			conds = append(conds, cond)
			args = append(args, a...)
		}
		return " WHERE " + strings.Join(conds, " AND "), args, nil
	case nil:
		return "", nil, api.ErrNilQuery
	default:
		return "", nil, unsupportedQuery(q)
	}
}

func (s *sqlSource[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.d.upsert, s.table), s.id(entity), string(data)); err != nil {
			yield(zero, fmt.Errorf("persistence: create %q: %w", s.id(entity), err))
			return
		}
		yield(entity, nil)
	}
}

func (s *sqlSource[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(s.d.update, s.table), string(data), id)
		if err != nil {
			yield(zero, fmt.Errorf("persistence: update %q: %w", id, err))
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			yield(zero, err)
			return
		}
		if n == 0 {
			yield(zero, notFound(id))
			return
		}
		yield(entity, nil)
	}
}

func (s *sqlSource[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		removed, err := s.delete(ctx, q)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		api.FromSlice(removed)(yield)
	}
}

func (s *sqlSource[T]) delete(ctx context.Context, q api.Query) ([]T, error) {
	where, args, err := s.where(q)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := s.query(ctx, tx, where, args)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.table+where, args...); err != nil {
		return nil, fmt.Errorf("persistence: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

// Fetch reads every match before yielding, so consumers may write to the
// same database while ranging.
func (s *sqlSource[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		where, args, err := s.where(q)
		if err != nil {
			yield(zero, err)
			return
		}
		found, err := s.query(ctx, s.db, where, args)
		if err != nil {
			yield(zero, err)
			return
		}
		api.FromSlice(found)(yield)
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *sqlSource[T]) query(ctx context.Context, db queryer, where string, args []any) ([]T, error) {
	rows, err := db.QueryContext(ctx, `SELECT body FROM `+s.table+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v, err := decodeEntity[T](body)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SQLiteSource is a DataSource stored in a SQLite table.
//
// It expects an *sql.DB opened with the "sqlite" driver from
// modernc.org/sqlite; the caller imports the driver.
type SQLiteSource[T any] struct {
	*sqlSource[T]
}

var _ api.DataSource[map[string]any] = (*SQLiteSource[map[string]any])(nil)

// NewSQLiteSource creates the entity table if needed. An empty table selects
// DefaultTable.
func NewSQLiteSource[T any](db *sql.DB, table string, id api.IDFunc[T]) (*SQLiteSource[T], error) {
	s, err := newSQLSource(db, sqliteDialect, table, id)
	if err != nil {
		return nil, err
	}
	return &SQLiteSource[T]{s}, nil
}

// PostgresSource is a DataSource stored in a PostgreSQL table with a JSONB
// body column.
//
// It expects an *sql.DB that uses a PostgreSQL driver, for example
// "github.com/jackc/pgx/v5/stdlib".
type PostgresSource[T any] struct {
	*sqlSource[T]
}

var _ api.DataSource[map[string]any] = (*PostgresSource[map[string]any])(nil)

// NewPostgresSource creates the entity table if needed.
func NewPostgresSource[T any](db *sql.DB, table string, id api.IDFunc[T]) (*PostgresSource[T], error) {
	s, err := newSQLSource(db, postgresDialect, table, id)
	if err != nil {
		return nil, err
	}
	return &PostgresSource[T]{s}, nil
}
