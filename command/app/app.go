// Package app wires configuration, logging, the store and the dashboard
// service for the CLI subcommands.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cost-dashboard/connectors/azure"
	connconfig "cost-dashboard/connectors/config"
	"cost-dashboard/connectors/costs"
	"cost-dashboard/connectors/database"
	"cost-dashboard/domain/config"
	"cost-dashboard/domain/dashboard"
	"cost-dashboard/internal/logging"
)

// App holds the process wide dependencies. Init runs before every
// subcommand; Open is only called by the subcommands that need the store.
type App struct {
	ConfigPath string
	Verbose    bool

	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	DB      *database.Manager
	Costs   *costs.Repository
	Service *dashboard.Service
}

// Init loads the configuration and builds the logger.
func (a *App) Init() error {
	cfg, err := connconfig.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	if a.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	a.Config = cfg
	a.Logger = logger
	a.Logger.Debug("config.loaded", zap.String("driver", string(cfg.Database.Driver)), zap.String("host", cfg.Database.Host))
	return nil
}

// Open connects to the store, runs the bootstrap query and builds the dashboard service.
func (a *App) Open(ctx context.Context) error {
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []database.Option{database.WithLogger(a.Logger), database.WithRegistry(a.Registry)}
	if a.Config.Database.Auth == database.AuthAAD {
		client, err := azure.NewClient(ctx, a.Config.Azure)
		if err != nil {
			return err
		}
		opts = append(opts, database.WithPassword(client.AccessToken))
	}

	db, err := database.New(ctx, a.Config.Database, opts...)
	if err != nil {
		return err
	}
	a.DB = db
	a.Logger.Info("database.client.ready",
		zap.String("driver", string(a.Config.Database.Driver)),
		zap.String("table", a.Config.Database.Table),
	)

	a.Costs = costs.NewRepository(db, a.Logger)
	options := a.Costs.FetchFilterOptions(ctx)

	d := a.Config.Dashboard
	svc, err := dashboard.New(ctx, a.Costs, options, dashboard.Settings{
		Budget:         decimal.NewFromFloat(d.Budget),
		Mode:           dashboard.Mode(d.Mode),
		CurrencySymbol: d.CurrencySymbol,
		PageSize:       d.PageSize,
		FetchTimeout:   d.FetchTimeout,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Service = svc
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
