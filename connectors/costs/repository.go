// Package costs reads billing records and filter option universes from the store.
package costs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cost-dashboard/connectors/database"
	"cost-dashboard/domain/cloudspending"
	"cost-dashboard/internal/logging"
)

const recordColumns = "id, cost, date, service, resource_group, currency, subscription_id, subscription, application, environment, cluster"

// Repository runs the dashboard's read queries against one costs table.
type Repository struct {
	db     *database.Manager
	table  string
	logger *zap.Logger
}

// NewRepository creates a repository over the manager's configured table.
func NewRepository(db *database.Manager, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		table:  db.Config().Table,
		logger: logging.OrNop(logger).Named("costs"),
	}
}

// FetchFilterOptions loads the distinct applications and clusters and the
// date bounds of the table. It never fails: when any query fails the error is
// logged and the degraded value is returned.
func (r *Repository) FetchFilterOptions(ctx context.Context) cloudspending.FilterOptions {
	opts, err := r.fetchFilterOptions(ctx)
	if err != nil {
		r.logger.Error("bootstrap.failed", zap.Error(err))
		return cloudspending.EmptyFilterOptions()
	}
	r.logger.Info("bootstrap.loaded",
		zap.Int("applications", len(opts.Applications)),
		zap.Int("clusters", len(opts.Clusters)),
		zap.Timep("min_date", opts.MinDate),
		zap.Timep("max_date", opts.MaxDate),
	)
	return opts
}

func (r *Repository) fetchFilterOptions(ctx context.Context) (cloudspending.FilterOptions, error) {
	apps, err := r.distinct(ctx, "application")
	if err != nil {
		return cloudspending.FilterOptions{}, err
	}
	clusters, err := r.distinct(ctx, "cluster")
	if err != nil {
		return cloudspending.FilterOptions{}, err
	}
	minDate, err := r.boundaryDate(ctx, "ASC")
	if err != nil {
		return cloudspending.FilterOptions{}, err
	}
	maxDate, err := r.boundaryDate(ctx, "DESC")
	if err != nil {
		return cloudspending.FilterOptions{}, err
	}
	return cloudspending.FilterOptions{
		Applications: apps,
		Clusters:     clusters,
		Environments: cloudspending.CanonicalEnvironments(),
		MinDate:      minDate,
		MaxDate:      maxDate,
	}, nil
}

func (r *Repository) distinct(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL AND %[1]s <> '' ORDER BY %[1]s", column, r.table)
	values, err := database.Select(ctx, r.db, query, func(rows *sql.Rows) (sql.NullString, error) {
		var v sql.NullString
		err := rows.Scan(&v)
		return v, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v.Valid && v.String != "" {
			out = append(out, v.String)
		}
	}
	return out, nil
}

// boundaryDate returns the first date in the given order, or nil for an empty table.
func (r *Repository) boundaryDate(ctx context.Context, order string) (*time.Time, error) {
	query := fmt.Sprintf("SELECT date FROM %s WHERE date IS NOT NULL ORDER BY date %s LIMIT 1", r.table, order)
	dates, err := database.Select(ctx, r.db, query, func(rows *sql.Rows) (time.Time, error) {
		var v any
		if err := rows.Scan(&v); err != nil {
			return time.Time{}, err
		}
		return cloudspending.ParseDate(v)
	})
	if err != nil || len(dates) == 0 || dates[0].IsZero() {
		return nil, err
	}
	return &dates[0], nil
}

// FetchRecords loads every record dated within [start, end], both inclusive.
func (r *Repository) FetchRecords(ctx context.Context, start, end time.Time) ([]cloudspending.CostRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE date >= ? AND date <= ? ORDER BY id", recordColumns, r.table)
	started := time.Now()
	records, err := database.Select(ctx, r.db, query, scanRecord,
		start.Format(cloudspending.DateLayout), end.Format(cloudspending.DateLayout))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("records.fetched",
		zap.String("start", start.Format(cloudspending.DateLayout)),
		zap.String("end", end.Format(cloudspending.DateLayout)),
		zap.Int("count", len(records)),
		zap.Duration("duration", time.Since(started)),
	)
	return records, nil
}

func scanRecord(rows *sql.Rows) (cloudspending.CostRecord, error) {
	var (
		rec  cloudspending.CostRecord
		cost sql.NullFloat64
		date any
		service, resourceGroup, currency, subscriptionID, subscription,
		application, environment, cluster sql.NullString
	)
	if err := rows.Scan(&rec.ID, &cost, &date, &service, &resourceGroup, &currency,
		&subscriptionID, &subscription, &application, &environment, &cluster); err != nil {
		return rec, err
	}
	d, err := cloudspending.ParseDate(date)
	if err != nil {
		return rec, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	rec.Cost = cost.Float64
	rec.Date = d
	rec.Service = service.String
	rec.ResourceGroup = resourceGroup.String
	rec.Currency = currency.String
	rec.SubscriptionID = subscriptionID.String
	rec.Subscription = subscription.String
	rec.Application = application.String
	rec.Environment = environment.String
	rec.Cluster = cluster.String
	return rec, nil
}
