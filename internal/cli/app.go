package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/mongo"
	"github.com/netguru/repolib/pkg/api"
	"github.com/netguru/repolib/postgres"
	"github.com/netguru/repolib/redis"
)

// Record is the entity type handled by the CLI: an arbitrary JSON object
// identified by one of its top-level fields.
type Record = map[string]any

// app holds the stores opened for a single command.
type app struct {
	bundle  *repolib.Bundle[Record]
	breaker *repolib.Breaker
	logger  *slog.Logger
	idField string
	closers []func() error
}

type appOptions struct {
	offline       bool
	fetchStrategy repolib.Strategy
}

func newLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func recordID(field string) repolib.IDFunc[Record] {
	return func(r Record) string {
		v, ok := r[field]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func openApp(ctx context.Context, cfg *Config, opts appOptions, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, idField: cfg.IDField}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	id := recordID(cfg.IDField)

	remote, err := a.openRemote(ctx, cfg.Remote, id)
	if err != nil {
		return nil, err
	}

	a.breaker = repolib.NewBreaker(repolib.BreakerConfig{
		Name:                cfg.Remote.Kind,
		ConsecutiveFailures: cfg.Breaker.Failures,
		Timeout:             cfg.Breaker.Timeout,
		Logger:              logger,
	})
	var admission repolib.AdmissionCheck = a.breaker
	if opts.offline {
		admission = repolib.AdmissionFunc(func() bool { return false })
	}

	localDB, err := sql.Open("sqlite", sqliteDSN(cfg.Local.Path))
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	a.closers = append(a.closers, localDB.Close)

	a.bundle, err = repolib.NewSQLiteBundle(localDB, repolib.Guard(remote, a.breaker), id, repolib.BundleConfig[Record]{
		LocalTable:   cfg.Local.Table,
		QueueTable:   cfg.Local.QueueTable,
		Admission:    admission,
		Factory:      routing(opts),
		OutputBuffer: 1024,
		Observer:     repolib.NewLoggingObserver(logger),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// routing reads local only while offline, and otherwise lets a fetch
// strategy override the defaults.
func routing(opts appOptions) repolib.StrategyFactory[Record] {
	def := api.DefaultStrategyFactory[Record]{}
	return repolib.StrategyFactoryFunc[Record](func(req repolib.Request[Record]) repolib.Strategy {
		if req.Kind() != api.KindFetch {
			return def.Select(req)
		}
		switch {
		case opts.offline:
			return repolib.OnlyLocal
		case opts.fetchStrategy != 0:
			return opts.fetchStrategy
		default:
			return def.Select(req)
		}
	})
}

func (a *app) openRemote(ctx context.Context, cfg RemoteConfig, id repolib.IDFunc[Record]) (repolib.DataSource[Record], error) {
	switch cfg.Kind {
	case RemoteSQLite:
		db, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("open remote database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return repolib.NewSQLiteSource(db, cfg.Table, id)

	case RemotePostgres:
		db, err := postgres.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return postgres.NewSource(db, cfg.Table, id)

	case RemoteRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.DSN})
		a.closers = append(a.closers, client.Close)
		return redis.NewSource(client, cfg.Prefix, id), nil

	case RemoteMongo:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := gomongo.Connect(cctx, options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() error {
			return client.Disconnect(context.Background())
		})
		return mongo.NewSource(client, cfg.Database, cfg.Collection, id), nil
	}
	return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
}

func (a *app) close() error {
	var errs []error
	if a.bundle != nil {
		errs = append(errs, a.bundle.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
