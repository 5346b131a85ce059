package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	cerrors "cost-dashboard/internal/errors"
)

// ScanFunc reads the current row
type ScanFunc[T any] func(rows *sql.Rows) (T, error)

// Select runs a read query in a fresh session and scans every row. Queries use
// ? placeholders; they are rewritten for drivers with numbered placeholders.
// Transient failures are retried per the retry policy.
func Select[T any](ctx context.Context, m *Manager, query string, scan ScanFunc[T], args ...any) ([]T, error) {
	query = m.dialect.rebind(query)

	var out []T
	err := m.retry(ctx, query, func(ctx context.Context) error {
		out = nil
		return m.WithSession(ctx, func(ctx context.Context, s *Session) error {
			rows, err := s.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				v, err := scan(rows)
				if err != nil {
					return err
				}
				out = append(out, v)
			}
			return rows.Err()
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteQuery runs a parameterized read query and returns the rows as column
// name to value maps. Byte slices are returned as strings.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return Select(ctx, m, query, scanMap, args...)
}

func scanMap(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = vals[i]
	}
	return row, nil
}

// retry runs op until it succeeds, fails permanently or the attempts are spent.
// The returned error is typed: TransientStoreError, QueryError, or the
// caller's context error.
func (m *Manager) retry(ctx context.Context, query string, op func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		start := time.Now()
		err := op(ctx)
		switch {
		case err == nil:
			m.metrics.observe(outcomeSuccess, start)
			return nil
		case IsTransient(err) && ctx.Err() == nil:
			m.metrics.observe(outcomeTransient, start)
			return err
		default:
			m.metrics.observe(outcomePermanent, start)
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(m.newBackOff(), ctx), func(err error, wait time.Duration) {
		m.metrics.retries.Inc()
		m.logger.Warn("query.retry",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.Retry.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}

	m.logger.Error("query.execution.error", zap.String("query", query), zap.Int("attempts", attempt), zap.Error(err))
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return err
	case cerrors.IsType(err, cerrors.TypeDataIntegrity):
		return err
	case IsTransient(err):
		return cerrors.Transient(fmt.Sprintf("query failed after %d attempts", attempt), err).WithContext("attempts", attempt)
	default:
		return cerrors.Query("query failed", err).WithContext("attempts", attempt)
	}
}
