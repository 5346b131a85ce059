package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	cerrors "cost-dashboard/internal/errors"
)

const appsQuery = "SELECT DISTINCT application FROM azure_costs WHERE date >= ?"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "db.local"
	cfg.Database = "costs"
	cfg.Username = "reader"
	cfg.Retry = RetryConfig{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	return cfg
}

func newMockManager(t *testing.T, cfg Config, opts ...Option) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, cfg, opts...), mock
}

func deadlock() error {
	return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
}

func TestExecuteQuery(t *testing.T) {
	m, mock := newMockManager(t, testConfig())

	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).
		WithArgs("2024-10-01").
		WillReturnRows(sqlmock.NewRows([]string{"application"}).AddRow("billing").AddRow([]byte("search")))
	mock.ExpectCommit()

	rows, err := m.ExecuteQuery(context.Background(), appsQuery, "2024-10-01")

	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"application": "billing"}, {"application": "search"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryRetriesTransientFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, mock := newMockManager(t, testConfig(), WithRegistry(reg))

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(appsQuery).WithArgs("2024-10-01").WillReturnError(deadlock())
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).
		WithArgs("2024-10-01").
		WillReturnRows(sqlmock.NewRows([]string{"application"}).AddRow("billing"))
	mock.ExpectCommit()

	rows, err := m.ExecuteQuery(context.Background(), appsQuery, "2024-10-01")

	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"application": "billing"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.attempts.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.attempts.WithLabelValues(outcomeTransient)))
}

func TestRecoveredRetryLogsNoErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m, mock := newMockManager(t, testConfig(), WithLogger(zap.New(core)))

	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).WithArgs("2024-10-01").WillReturnError(deadlock())
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).
		WithArgs("2024-10-01").
		WillReturnRows(sqlmock.NewRows([]string{"application"}).AddRow("billing"))
	mock.ExpectCommit()

	_, err := m.ExecuteQuery(context.Background(), appsQuery, "2024-10-01")

	require.NoError(t, err)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("session.error").Len())
}

func TestExecuteQuerySurfacesFinalTransientFailure(t *testing.T) {
	m, mock := newMockManager(t, testConfig())

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(appsQuery).WithArgs("2024-10-01").WillReturnError(deadlock())
		mock.ExpectRollback()
	}

	rows, err := m.ExecuteQuery(context.Background(), appsQuery, "2024-10-01")

	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, cerrors.IsType(err, cerrors.TypeTransient))
	var myErr *mysql.MySQLError
	require.ErrorAs(t, err, &myErr)
	assert.Equal(t, uint16(1213), myErr.Number)

	var typed *cerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 3, typed.Context["attempts"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryDoesNotRetryQueryErrors(t *testing.T) {
	m, mock := newMockManager(t, testConfig())

	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).
		WithArgs("2024-10-01").
		WillReturnError(&mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	mock.ExpectRollback()

	_, err := m.ExecuteQuery(context.Background(), appsQuery, "2024-10-01")

	assert.True(t, cerrors.IsType(err, cerrors.TypeQuery))
	assert.False(t, cerrors.IsType(err, cerrors.TypeTransient))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectDoesNotRetryScanIntegrityErrors(t *testing.T) {
	m, mock := newMockManager(t, testConfig())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT date FROM azure_costs").
		WillReturnRows(sqlmock.NewRows([]string{"date"}).AddRow("not-a-date"))
	mock.ExpectRollback()

	_, err := Select(context.Background(), m, "SELECT date FROM azure_costs", func(rows *sql.Rows) (string, error) {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", err
		}
		return "", cerrors.DataIntegrity("malformed date "+s, nil)
	})

	assert.True(t, cerrors.IsType(err, cerrors.TypeDataIntegrity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryStopsOnCancelledContext(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.InitialInterval = time.Hour
	cfg.Retry.MaxInterval = time.Hour
	m, mock := newMockManager(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	mock.ExpectBegin()
	mock.ExpectQuery(appsQuery).WithArgs("2024-10-01").WillReturnError(deadlock())
	mock.ExpectRollback()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := m.ExecuteQuery(ctx, appsQuery, "2024-10-01")

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectRebindsForPostgres(t *testing.T) {
	cfg := testConfig()
	cfg.Driver = Postgres
	m, mock := newMockManager(t, cfg)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM azure_costs WHERE date >= $1 AND date <= $2").
		WithArgs("2024-10-01", "2024-10-31").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	ids, err := Select(context.Background(), m, "SELECT id FROM azure_costs WHERE date >= ? AND date <= ?", func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	}, "2024-10-01", "2024-10-31")

	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSession(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		m, mock := newMockManager(t, testConfig())
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := m.WithSession(context.Background(), func(context.Context, *Session) error { return nil })

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		m, mock := newMockManager(t, testConfig())
		mock.ExpectBegin()
		mock.ExpectRollback()
		boom := errors.New("boom")

		err := m.WithSession(context.Background(), func(context.Context, *Session) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		m, mock := newMockManager(t, testConfig())
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = m.WithSession(context.Background(), func(context.Context, *Session) error { panic("kaboom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 0, m.Stats().InUse)
	})

	t.Run("surfaces commit failure", func(t *testing.T) {
		m, mock := newMockManager(t, testConfig())
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err := m.WithSession(context.Background(), func(context.Context, *Session) error { return nil })

		assert.EqualError(t, err, "commit failed")
	})
}

func TestSessionReleaseIsIdempotent(t *testing.T) {
	m, mock := newMockManager(t, testConfig())
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats().InUse)

	assert.NoError(t, s.Release(nil))
	assert.NoError(t, s.Release(errors.New("late")))
	assert.Equal(t, 0, m.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireSessionPoolTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 1
	cfg.MaxOverflow = 0
	cfg.PoolTimeout = 20 * time.Millisecond
	m, mock := newMockManager(t, cfg)
	mock.ExpectBegin()
	mock.ExpectCommit()

	held, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	_, err = m.AcquireSession(context.Background())
	assert.ErrorIs(t, err, ErrPoolTimeout)
	assert.True(t, IsTransient(err))

	require.NoError(t, held.Release(nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseIsIdempotent(t *testing.T) {
	m, mock := newMockManager(t, testConfig())
	mock.ExpectClose()

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())

	_, err := m.AcquireSession(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Ping(context.Background()), ErrClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.TypeConfig))
	assert.Regexp(t, regexp.MustCompile("host is required"), err.Error())
}

func TestNewRequiresPasswordSourceForAAD(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = AuthAAD

	_, err := New(context.Background(), cfg)

	assert.True(t, cerrors.IsType(err, cerrors.TypeConfig))
}

func TestNewWithDBAppliesPoolSettings(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 2
	cfg.MaxOverflow = 3
	m, _ := newMockManager(t, cfg)

	assert.Equal(t, 5, m.Stats().MaxOpenConnections)
	assert.Equal(t, MySQL, m.Config().Driver)
}
