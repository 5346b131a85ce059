package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Session is a dedicated pooled connection with an open transaction.
// Release must be called exactly once; WithSession does it for the caller.
type Session struct {
	conn    *sql.Conn
	tx      *sql.Tx
	logger  *zap.Logger
	once    sync.Once
	release error
}

// AcquireSession takes a connection from the pool, waiting at most PoolTimeout,
// and begins a transaction on it.
func (m *Manager) AcquireSession(ctx context.Context) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.PoolTimeout)
	conn, err := m.db.Conn(acquireCtx)
	timedOut := errors.Is(acquireCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			return nil, fmt.Errorf("%w after %s: %w", ErrPoolTimeout, m.cfg.PoolTimeout, err)
		}
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: m.dialect.readOnlyTx})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Session{conn: conn, tx: tx, logger: m.logger}, nil
}

// QueryContext runs a query inside the session's transaction.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the session's transaction.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

// Release commits when cause is nil and rolls back otherwise, then returns
// the connection to the pool. Later calls return the first call's result.
func (s *Session) Release(cause error) error {
	s.once.Do(func() {
		if cause != nil {
			if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Warn("session.rollback.error", zap.Error(err))
			}
			s.logger.Debug("session.error", zap.Error(cause))
		} else {
			s.release = s.tx.Commit()
		}
		if err := s.conn.Close(); err != nil && s.release == nil {
			s.release = err
		}
	})
	return s.release
}

// WithSession runs fn in a fresh session and releases it on every exit path,
// rolling back when fn fails or panics.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := m.AcquireSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Release(fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if relErr := s.Release(err); err == nil {
			err = relErr
		}
	}()
	return fn(ctx, s)
}
