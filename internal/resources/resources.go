// Package resources opens the stores and record sources named in the
// application config and binds them to the pipeline modules.
package resources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/modules"
	"retail-signal-lab/internal/observability"
	"retail-signal-lab/internal/storage"
	chstore "retail-signal-lab/internal/storage/clickhouse"
	"retail-signal-lab/internal/storage/memory"
	"retail-signal-lab/internal/storage/migrations"
	pgstore "retail-signal-lab/internal/storage/postgres"
	"retail-signal-lab/internal/storage/sqlite"
)

// Set is everything a command needs to run pipelines.
type Set struct {
	Modules *modules.Resources
	RunLog  storage.RunLogStore
}

// connections caches one pool/conn per DSN.
type connections struct {
	ctx     context.Context
	cfg     *config.App
	pools   map[string]*pgstore.Pool
	conns   map[string]*chstore.Conn
	closers []func()
}

func (c *connections) cleanup() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func (c *connections) postgres(dsn string, migrate bool) (*pgstore.Pool, error) {
	if pool, ok := c.pools[dsn]; ok {
		return pool, nil
	}
	pool, err := pgstore.NewPool(c.ctx, dsn, pgstore.WithMaxConns(int32(c.cfg.Database.Postgres.MaxConns)))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	c.pools[dsn] = pool

	if migrate {
		if err := migrations.RunPostgresMigrations(c.ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}
	return pool, nil
}

func (c *connections) clickhouse(dsn string, migrate bool) (*chstore.Conn, error) {
	if conn, ok := c.conns[dsn]; ok {
		return conn, nil
	}
	var (
		conn *chstore.Conn
		err  error
	)
	if migrate {
		conn, err = migrations.RunClickhouseMigrations(c.ctx, dsn)
	} else {
		conn, err = chstore.NewConn(c.ctx, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	c.closers = append(c.closers, func() { conn.Close() })
	c.conns[dsn] = conn
	return conn, nil
}

// Open connects the configured databases. Without a postgres DSN the run log
// is kept in memory; without a clickhouse DSN so are activity and discount
// features. Price intervals prefer clickhouse, then postgres, then memory.
// The returned cleanup closes every connection and source.
func Open(ctx context.Context, cfg *config.App, logger *zap.Logger, m *observability.Metrics) (*Set, func(), error) {
	conns := &connections{
		ctx:   ctx,
		cfg:   cfg,
		pools: make(map[string]*pgstore.Pool),
		conns: make(map[string]*chstore.Conn),
	}

	res := &modules.Resources{
		Sources:   make(map[string]storage.RecordSource, len(cfg.Sources)),
		Intervals: memory.NewPriceIntervalStore(),
		Activity:  memory.NewActivityStore(),
		Features:  memory.NewDiscountFeatureStore(),
		Logger:    logger,
		Metrics:   m,
	}
	set := &Set{Modules: res, RunLog: memory.NewRunLogStore()}

	fail := func(err error) (*Set, func(), error) {
		conns.cleanup()
		return nil, nil, err
	}

	if pg := cfg.Database.Postgres; pg.DSN != "" {
		pool, err := conns.postgres(pg.DSN, pg.Migrate)
		if err != nil {
			return fail(err)
		}
		set.RunLog = pgstore.NewRunLogStore(pool)
		res.Intervals = pgstore.NewPriceIntervalStore(pool)
	}

	if ch := cfg.Database.Clickhouse; ch.DSN != "" {
		conn, err := conns.clickhouse(ch.DSN, ch.Migrate)
		if err != nil {
			return fail(err)
		}
		res.Intervals = chstore.NewPriceIntervalStore(conn)
		res.Activity = chstore.NewActivityStore(conn)
		res.Features = chstore.NewDiscountFeatureStore(conn)
	}

	for _, sc := range cfg.Sources {
		src, err := conns.source(sc)
		if err != nil {
			return fail(fmt.Errorf("source %s: %w", sc.Name, err))
		}
		res.Sources[sc.Name] = observability.InstrumentSource(sc.Name, src, m)
	}

	if logger != nil {
		logger.Info("resources opened",
			zap.Int("sources", len(res.Sources)),
			zap.Bool("postgres", cfg.Database.Postgres.DSN != ""),
			zap.Bool("clickhouse", cfg.Database.Clickhouse.DSN != ""))
	}
	return set, conns.cleanup, nil
}

func (c *connections) source(sc config.SourceConfig) (storage.RecordSource, error) {
	switch sc.Kind {
	case config.SourcePostgres:
		pool, err := c.postgres(sc.DSN, false)
		if err != nil {
			return nil, err
		}
		return pgstore.NewRecordSource(pool), nil
	case config.SourceClickhouse:
		conn, err := c.clickhouse(sc.DSN, false)
		if err != nil {
			return nil, err
		}
		return chstore.NewRecordSource(conn), nil
	case config.SourceSqlite:
		store, err := sqlite.OpenReadOnly(c.ctx, sc.Path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("%w: source kind %q", config.ErrInvalidConfig, sc.Kind)
	}
}
