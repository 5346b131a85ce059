package costs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cost-dashboard/connectors/database"
	"cost-dashboard/domain/cloudspending"
	cerrors "cost-dashboard/internal/errors"
)

const (
	appsQuery     = "SELECT DISTINCT application FROM azure_costs WHERE application IS NOT NULL AND application <> '' ORDER BY application"
	clustersQuery = "SELECT DISTINCT cluster FROM azure_costs WHERE cluster IS NOT NULL AND cluster <> '' ORDER BY cluster"
	minDateQuery  = "SELECT date FROM azure_costs WHERE date IS NOT NULL ORDER BY date ASC LIMIT 1"
	maxDateQuery  = "SELECT date FROM azure_costs WHERE date IS NOT NULL ORDER BY date DESC LIMIT 1"
	recordsQuery  = "SELECT " + recordColumns + " FROM azure_costs WHERE date >= ? AND date <= ? ORDER BY id"
)

func newRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := database.DefaultConfig()
	cfg.Retry = database.RetryConfig{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	return NewRepository(database.NewWithDB(db, cfg), nil), mock
}

func expectSelect(mock sqlmock.Sqlmock, query string, rows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(query).WillReturnRows(rows)
	mock.ExpectCommit()
}

func TestFetchFilterOptions(t *testing.T) {
	repo, mock := newRepository(t)
	expectSelect(mock, appsQuery, sqlmock.NewRows([]string{"application"}).AddRow("billing").AddRow("search"))
	expectSelect(mock, clustersQuery, sqlmock.NewRows([]string{"cluster"}).AddRow("aks-weu").AddRow(nil))
	expectSelect(mock, minDateQuery, sqlmock.NewRows([]string{"date"}).AddRow(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
	expectSelect(mock, maxDateQuery, sqlmock.NewRows([]string{"date"}).AddRow([]byte("2024-10-31")))

	opts := repo.FetchFilterOptions(context.Background())

	assert.False(t, opts.Degraded)
	assert.Equal(t, []string{"billing", "search"}, opts.Applications)
	assert.Equal(t, []string{"aks-weu"}, opts.Clusters)
	assert.Equal(t, cloudspending.CanonicalEnvironments(), opts.Environments)
	require.NotNil(t, opts.MinDate)
	require.NotNil(t, opts.MaxDate)
	assert.Equal(t, "2024-01-03", opts.MinDate.Format(cloudspending.DateLayout))
	assert.Equal(t, "2024-10-31", opts.MaxDate.Format(cloudspending.DateLayout))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchFilterOptionsEmptyTable(t *testing.T) {
	repo, mock := newRepository(t)
	expectSelect(mock, appsQuery, sqlmock.NewRows([]string{"application"}))
	expectSelect(mock, clustersQuery, sqlmock.NewRows([]string{"cluster"}))
	expectSelect(mock, minDateQuery, sqlmock.NewRows([]string{"date"}))
	expectSelect(mock, maxDateQuery, sqlmock.NewRows([]string{"date"}))

	opts := repo.FetchFilterOptions(context.Background())

	assert.False(t, opts.Degraded)
	assert.Empty(t, opts.Applications)
	assert.Nil(t, opts.MinDate)
	assert.Nil(t, opts.MaxDate)
}

func TestFetchFilterOptionsDegradesOnFailure(t *testing.T) {
	repo, mock := newRepository(t)
	expectSelect(mock, appsQuery, sqlmock.NewRows([]string{"application"}).AddRow("billing"))
	mock.ExpectBegin()
	mock.ExpectQuery(clustersQuery).WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"})
	mock.ExpectRollback()

	opts := repo.FetchFilterOptions(context.Background())

	assert.Equal(t, cloudspending.EmptyFilterOptions(), opts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecords(t *testing.T) {
	repo, mock := newRepository(t)
	cols := []string{"id", "cost", "date", "service", "resource_group", "currency",
		"subscription_id", "subscription", "application", "environment", "cluster"}
	mock.ExpectBegin()
	mock.ExpectQuery(recordsQuery).
		WithArgs("2024-10-01", "2024-10-31").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), 12.5, "2024-10-02", "Storage", "rg-billing", "EUR", "sub-1", "Production", "billing", "prd", "aks-weu").
			AddRow(int64(2), nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectCommit()

	recs, err := repo.FetchRecords(context.Background(),
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, cloudspending.CostRecord{
		ID:             1,
		Cost:           12.5,
		Date:           time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC),
		Service:        "Storage",
		ResourceGroup:  "rg-billing",
		Currency:       "EUR",
		SubscriptionID: "sub-1",
		Subscription:   "Production",
		Application:    "billing",
		Environment:    "prd",
		Cluster:        "aks-weu",
	}, recs[0])
	assert.Equal(t, cloudspending.CostRecord{ID: 2}, recs[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecordsMalformedDate(t *testing.T) {
	repo, mock := newRepository(t)
	cols := []string{"id", "cost", "date", "service", "resource_group", "currency",
		"subscription_id", "subscription", "application", "environment", "cluster"}
	mock.ExpectBegin()
	mock.ExpectQuery(recordsQuery).
		WithArgs("2024-10-01", "2024-10-31").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(9), 1.0, "31/10/2024", nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectRollback()

	_, err := repo.FetchRecords(context.Background(),
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC))

	assert.True(t, cerrors.IsType(err, cerrors.TypeDataIntegrity))
	assert.ErrorContains(t, err, "record 9")
	assert.NoError(t, mock.ExpectationsWereMet())
}
