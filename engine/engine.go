// Package engine assembles a request handler from a configuration and a
// catalog: it opens the datasource, wraps its driver with statistics and
// debug logging, optionally caches reads and serves client requests.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/qengine/builder"
	"github.com/syssam/qengine/cache"
	"github.com/syssam/qengine/config"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/connector/sqlconnector"
	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/privacy"
	"github.com/syssam/qengine/request"
	"github.com/syssam/qengine/schema"
)

// Engine serves client requests on a datasource.
type Engine struct {
	cfg     *config.Config
	conn    connector.Connector
	stats   *sql.StatsDriver
	handler *request.Handler
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	policies privacy.ModelPolicies
}

// WithLogger sets the logger of the engine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPolicies sets the privacy policies of the engine.
func WithPolicies(p privacy.ModelPolicies) Option {
	return func(o *options) {
		o.policies = p
	}
}

// Open opens the configured datasource and returns an engine serving the
// models of c.
func Open(cfg *config.Config, c *schema.Catalog, opts ...Option) (*Engine, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	mode, err := cfg.Datasource.Mode()
	if err != nil {
		return nil, err
	}
	if mode != c.Mode {
		return nil, fmt.Errorf("engine: catalog relation mode %s does not match the configured %s", c.Mode, mode)
	}
	drv, err := sql.Open(cfg.Datasource.Driver, cfg.Datasource.DSN)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", cfg.Datasource.Driver, err)
	}
	db := drv.DB()
	db.SetMaxOpenConns(cfg.Datasource.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Datasource.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Datasource.ConnMaxLifetime)

	stats := sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(cfg.Datasource.SlowQueryThreshold),
		sql.WithSlowQueryLog(o.logger),
	)
	var d dialect.Driver = stats
	if cfg.Datasource.Debug {
		d = sql.NewDebugDriver(d, o.logger)
	}
	sc, err := sqlconnector.New(d)
	if err != nil {
		drv.Close()
		return nil, err
	}
	var conn connector.Connector = sc
	if cfg.Cache.Enabled {
		lru, err := cache.NewLRU(cfg.Cache.Size)
		if err != nil {
			drv.Close()
			return nil, fmt.Errorf("engine: cache: %w", err)
		}
		conn = cache.NewConnector(sc, lru,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(o.logger),
		)
	}
	s := builder.NewQuerySchema(c, conn.Capabilities())
	h := request.NewHandler(conn, s,
		request.WithLogger(o.logger),
		request.WithConcurrency(cfg.Request.Concurrency),
		request.WithPolicies(o.policies),
	)
	o.logger.Info("engine opened",
		"driver", cfg.Datasource.Driver,
		"relation_mode", mode.String(),
		"capabilities", conn.Capabilities().String(),
		"cache", cfg.Cache.Enabled,
	)
	return &Engine{cfg: cfg, conn: conn, stats: stats, handler: h, log: o.logger}, nil
}

// Handle handles a decoded request. See request.Handler.Handle.
func (e *Engine) Handle(ctx context.Context, req *document.Request) any {
	return e.handler.Handle(e.context(ctx), req)
}

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.handler.ServeHTTP(w, r.WithContext(e.context(r.Context())))
}

// Stats returns the statement statistics of the datasource.
func (e *Engine) Stats() sql.StatsSnapshot {
	return e.stats.QueryStats().Stats()
}

// Close closes the datasource.
func (e *Engine) Close() error {
	e.log.Info("engine closed", "stats", e.Stats().String())
	return e.conn.Close()
}

// context sets the statement timeout of the configuration as a session
// variable of the datasource.
func (e *Engine) context(ctx context.Context) context.Context {
	timeout := e.cfg.Datasource.StatementTimeout
	if timeout <= 0 {
		return ctx
	}
	switch e.cfg.Datasource.Driver {
	case dialect.Postgres:
		return sql.WithIntVar(ctx, "statement_timeout", int(timeout.Milliseconds()))
	case dialect.MySQL:
		return sql.WithIntVar(ctx, "max_execution_time", int(timeout.Milliseconds()))
	}
	return ctx
}
