// Package dashboard serves cost aggregates for filter selections, either from a
// snapshot loaded at startup or by fetching each requested date range.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cost-dashboard/domain/cloudspending"
	cerrors "cost-dashboard/internal/errors"
	"cost-dashboard/internal/logging"
)

// Mode selects how records are fetched
type Mode string

const (
	// ModePreload loads every record between the bootstrap date bounds once.
	ModePreload Mode = "preload"
	// ModeQuery fetches the requested date range on each call.
	ModeQuery Mode = "query"
)

// Store fetches the records dated within [start, end].
type Store interface {
	FetchRecords(ctx context.Context, start, end time.Time) ([]cloudspending.CostRecord, error)
}

// Settings are the dashboard display and fetch settings
type Settings struct {
	Budget         decimal.Decimal
	Mode           Mode
	CurrencySymbol string
	PageSize       int
	// FetchTimeout bounds a store fetch shared by concurrent callers.
	FetchTimeout time.Duration
}

// DefaultFetchTimeout is used when Settings.FetchTimeout is unset.
const DefaultFetchTimeout = time.Minute

// Service computes dashboard views. It is safe for concurrent use.
type Service struct {
	store    Store
	options  cloudspending.FilterOptions
	settings Settings
	logger   *zap.Logger

	flight singleflight.Group

	mu       sync.RWMutex
	snapshot []cloudspending.CostRecord
	loaded   bool
}

// New creates the service around an already fetched bootstrap value. In
// preload mode the snapshot is loaded immediately; a failed load is retried
// on the next request, except for data integrity failures which are returned.
func New(ctx context.Context, store Store, options cloudspending.FilterOptions, settings Settings, logger *zap.Logger) (*Service, error) {
	if settings.Mode == "" {
		settings.Mode = ModePreload
	}
	if settings.Mode != ModePreload && settings.Mode != ModeQuery {
		return nil, cerrors.Config(fmt.Sprintf("unknown dashboard mode %q", settings.Mode), nil)
	}
	if settings.PageSize <= 0 {
		settings.PageSize = cloudspending.DefaultPageSize
	}
	if settings.FetchTimeout <= 0 {
		settings.FetchTimeout = DefaultFetchTimeout
	}

	s := &Service{
		store:    store,
		options:  options,
		settings: settings,
		logger:   logging.OrNop(logger).Named("dashboard"),
	}
	if settings.Mode == ModePreload {
		if _, err := s.loadSnapshot(ctx); err != nil {
			if cerrors.IsType(err, cerrors.TypeDataIntegrity) {
				return nil, err
			}
			s.logger.Warn("snapshot.load.failed", zap.Error(err))
		}
	}
	return s, nil
}

// FilterOptions returns the bootstrap value the service was built with.
func (s *Service) FilterOptions() cloudspending.FilterOptions {
	return s.options
}

// Settings returns the effective settings
func (s *Service) Settings() Settings {
	return s.settings
}

// ComputeAggregates aggregates the records matching spec. When the records
// cannot be fetched the result is all zeros and marked degraded.
func (s *Service) ComputeAggregates(ctx context.Context, spec cloudspending.FilterSpec) (cloudspending.AggregateResult, error) {
	records, err := s.records(ctx, spec)
	if err != nil {
		if !degradable(ctx, err) {
			return cloudspending.AggregateResult{}, err
		}
		s.logger.Warn("aggregate.degraded", zap.Error(err))
		res := cloudspending.Summarize(nil, s.settings.Budget)
		res.Degraded = true
		return res, nil
	}
	res := cloudspending.Aggregate(records, spec, s.settings.Budget)
	// a preload without bounds has no snapshot to serve
	res.Degraded = s.settings.Mode == ModePreload && s.options.Degraded
	return res, nil
}

// Table returns one sorted page of the resource group / application costs.
func (s *Service) Table(ctx context.Context, spec cloudspending.FilterSpec, q cloudspending.TableQuery) (cloudspending.CostTable, error) {
	res, err := s.ComputeAggregates(ctx, spec)
	if err != nil {
		return cloudspending.CostTable{}, err
	}
	if q.PageSize <= 0 {
		q.PageSize = s.settings.PageSize
	}
	table := cloudspending.BuildTable(res.ByResourceGroupApplication, q)
	table.Degraded = res.Degraded
	return table, nil
}

// Records returns the records matching spec. Fetch errors are returned as is.
func (s *Service) Records(ctx context.Context, spec cloudspending.FilterSpec) ([]cloudspending.CostRecord, error) {
	records, err := s.records(ctx, spec)
	if err != nil {
		return nil, err
	}
	return cloudspending.Filter(records, spec), nil
}

func (s *Service) records(ctx context.Context, spec cloudspending.FilterSpec) ([]cloudspending.CostRecord, error) {
	if s.settings.Mode == ModePreload {
		return s.loadSnapshot(ctx)
	}
	start, end := cloudspending.TruncateDate(spec.Start), cloudspending.TruncateDate(spec.End)
	if start.After(end) {
		return nil, nil
	}
	key := start.Format(cloudspending.DateLayout) + "/" + end.Format(cloudspending.DateLayout)
	return s.shared(ctx, key, func(ctx context.Context) ([]cloudspending.CostRecord, error) {
		return s.store.FetchRecords(ctx, start, end)
	})
}

// loadSnapshot returns the preloaded records, loading them on first use.
// Without date bounds there is nothing to load.
func (s *Service) loadSnapshot(ctx context.Context) ([]cloudspending.CostRecord, error) {
	s.mu.RLock()
	snapshot, loaded := s.snapshot, s.loaded
	s.mu.RUnlock()
	if loaded {
		return snapshot, nil
	}
	if s.options.MinDate == nil || s.options.MaxDate == nil {
		return nil, nil
	}

	return s.shared(ctx, "snapshot", func(ctx context.Context) ([]cloudspending.CostRecord, error) {
		started := time.Now()
		records, err := s.store.FetchRecords(ctx, *s.options.MinDate, *s.options.MaxDate)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.snapshot, s.loaded = records, true
		s.mu.Unlock()
		s.logger.Info("snapshot.loaded", zap.Int("records", len(records)), zap.Duration("duration", time.Since(started)))
		return records, nil
	})
}

// shared runs fetch once for all concurrent callers of key. The fetch is
// detached from the caller that started it, so one caller leaving does not
// fail the others; each caller still stops waiting when its own ctx is done.
func (s *Service) shared(ctx context.Context, key string, fetch func(context.Context) ([]cloudspending.CostRecord, error)) ([]cloudspending.CostRecord, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.FetchTimeout)
		defer cancel()
		return fetch(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		records, _ := r.Val.([]cloudspending.CostRecord)
		return records, nil
	}
}

// degradable reports whether a fetch failure is shown as a degraded result
// rather than returned.
func degradable(ctx context.Context, err error) bool {
	if cerrors.IsType(err, cerrors.TypeDataIntegrity) {
		return false
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return false
	}
	return true
}
