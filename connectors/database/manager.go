// Package database owns the pooled connection to the billing store: scoped
// sessions, retry of transient failures and failure classification.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	cerrors "cost-dashboard/internal/errors"
	"cost-dashboard/internal/logging"
)

// Manager provides pooled, retried, read-only access to the store.
// It is safe for concurrent use.
type Manager struct {
	db      *sql.DB
	cfg     Config
	dialect dialect
	logger  *zap.Logger
	metrics *metrics
	closed  atomic.Bool
}

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	password PasswordFunc
}

// Option customizes a Manager
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry registers query and pool metrics on reg
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithPassword makes every new connection ask fn for its password.
// Required for AuthAAD.
func WithPassword(fn PasswordFunc) Option {
	return func(o *options) { o.password = fn }
}

// New validates cfg, opens the pool and checks the store is reachable within
// ConnectTimeout. A failure here leaves no Manager behind.
func New(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	o := buildOptions(opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth == AuthAAD && o.password == nil {
		return nil, cerrors.Config("aad auth requires a token password source", nil)
	}

	db, err := open(cfg, o.password)
	if err != nil {
		return nil, cerrors.Config("open database pool", err)
	}
	m := newManager(db, cfg, o)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, cerrors.Transient(fmt.Sprintf("connect to %s %s:%d/%s", cfg.Driver, cfg.Host, cfg.port(), cfg.Database), err)
	}

	dsn, _ := cfg.DSN(cfg.Password)
	m.logger.Info("database.client.initialized",
		zap.String("driver", string(cfg.Driver)),
		zap.String("dsn", Redact(dsn, cfg.Password)),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.port()),
		zap.String("database", cfg.Database),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("max_overflow", cfg.MaxOverflow),
	)
	return m, nil
}

// NewWithDB wraps an already opened pool. Connection details in cfg are not
// validated; pool and retry settings are applied.
func NewWithDB(db *sql.DB, cfg Config, opts ...Option) *Manager {
	return newManager(db, cfg, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

func newManager(db *sql.DB, cfg Config, o options) *Manager {
	def := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = def.Driver
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = def.PoolTimeout
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry = def.Retry
	}

	db.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(cfg.PoolRecycle)

	if o.registry != nil {
		o.registry.MustRegister(collectors.NewDBStatsCollector(db, cfg.Database))
	}

	return &Manager{
		db:      db,
		cfg:     cfg,
		dialect: dialects[cfg.Driver],
		logger:  o.logger,
		metrics: newMetrics(o.registry),
	}
}

func open(cfg Config, password PasswordFunc) (*sql.DB, error) {
	if password == nil {
		static := cfg.Password
		password = func(context.Context) (string, error) { return static, nil }
	}
	switch cfg.Driver {
	case MySQL:
		return sql.OpenDB(&tokenConnector{drv: mysql.MySQLDriver{}, cfg: cfg, password: password}), nil
	case Postgres:
		return sql.OpenDB(&tokenConnector{drv: pq.Driver{}, cfg: cfg, password: password}), nil
	case ClickHouse:
		return sql.Open("clickhouse", dialects[ClickHouse].dsn(cfg, cfg.Password))
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Stats returns pool statistics
func (m *Manager) Stats() sql.DBStats {
	return m.db.Stats()
}

// Ping checks that a connection to the store can be established.
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PoolTimeout)
	defer cancel()
	return m.db.PingContext(ctx)
}

// Close releases every pooled connection. Closing twice only logs.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		m.logger.Warn("database.close.already_closed")
		return nil
	}
	if err := m.db.Close(); err != nil {
		m.logger.Error("database.close.error", zap.Error(err))
		return err
	}
	m.logger.Info("database.closed")
	return nil
}

func (m *Manager) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.Retry.InitialInterval
	b.MaxInterval = m.cfg.Retry.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if m.cfg.Retry.Jitter {
		b.RandomizationFactor = 0.5
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(m.cfg.Retry.Attempts-1))
}
