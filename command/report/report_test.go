package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cost-dashboard/domain/cloudspending"
	cerrors "cost-dashboard/internal/errors"
)

func result() (cloudspending.AggregateResult, []cloudspending.ResourceGroupCost) {
	rows := []cloudspending.ResourceGroupCost{
		{ResourceGroup: "rg-a", Application: "billing", Cost: decimal.NewFromInt(20000)},
		{ResourceGroup: "rg-b", Application: "", Cost: decimal.RequireFromString("12.5")},
	}
	return cloudspending.AggregateResult{
		TotalCost:        decimal.RequireFromString("20012.5"),
		TotalBudget:      decimal.NewFromInt(25000),
		ApplicationCount: 1,
		ByApplication: []cloudspending.ApplicationCost{
			{Application: "billing", Cost: decimal.NewFromInt(20000)},
			{Application: "", Cost: decimal.RequireFromString("12.5")},
		},
		ByResourceGroupApplication: rows,
	}, rows
}

func TestRenderTable(t *testing.T) {
	res, rows := result()
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatTable, res, rows, "€"))

	out := buf.String()
	assert.Contains(t, out, "Total cost    €20,012.50")
	assert.Contains(t, out, "Total budget  €25,000.00")
	assert.Contains(t, out, "rg-b            -            €12.50")
	assert.NotContains(t, out, "warning")
}

func TestRenderTableDegraded(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatTable, cloudspending.AggregateResult{Degraded: true}, nil, "€"))

	assert.Contains(t, buf.String(), "warning: cost data unavailable")
}

func TestRenderJSON(t *testing.T) {
	res, rows := result()
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatJSON, res, rows, "€"))

	var decoded cloudspending.AggregateResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.True(t, decoded.TotalCost.Equal(res.TotalCost))
	assert.Len(t, decoded.ByResourceGroupApplication, 2)
}

func TestRenderCSV(t *testing.T) {
	res, rows := result()
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatCSV, res, rows, "€"))

	assert.Equal(t, "resource_group,application,cost\nrg-a,billing,20000.00\nrg-b,,12.50\n", buf.String())
}

func TestFlagsValidate(t *testing.T) {
	_, _, err := flags{format: "xml", sort: "cost"}.validate()
	assert.True(t, cerrors.IsType(err, cerrors.TypeInput))

	_, _, err = flags{format: "table", sort: "price"}.validate()
	assert.True(t, cerrors.IsType(err, cerrors.TypeInput))

	format, col, err := flags{format: "JSON", sort: "application"}.validate()
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)
	assert.Equal(t, cloudspending.ColumnApplication, col)
}

func TestFlagsSpec(t *testing.T) {
	minDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	opts := cloudspending.FilterOptions{MinDate: &minDate, MaxDate: &maxDate}

	spec, err := flags{end: "2024-06-30"}.spec(opts, false)
	require.NoError(t, err)
	assert.Equal(t, minDate, spec.Start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), spec.End)
	assert.Equal(t, cloudspending.CanonicalEnvironments(), spec.Environments)

	spec, err = flags{envs: []string{"PRD", "prd"}}.spec(opts, true)
	require.NoError(t, err)
	assert.Equal(t, []cloudspending.Environment{cloudspending.Prd}, spec.Environments)

	spec, err = flags{}.spec(opts, true)
	require.NoError(t, err)
	assert.Empty(t, spec.Environments)

	_, err = flags{start: "yesterday"}.spec(opts, false)
	assert.True(t, cerrors.IsType(err, cerrors.TypeInput))
}
