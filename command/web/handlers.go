package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	lo "github.com/samber/lo"
	"go.uber.org/zap"

	costcsv "cost-dashboard/connectors/csv"
	"cost-dashboard/domain/cloudspending"
	"cost-dashboard/domain/dashboard"
	cerrors "cost-dashboard/internal/errors"
)

type handlers struct {
	svc    *dashboard.Service
	health Pinger
	logger *zap.Logger
}

type costsResponse struct {
	cloudspending.AggregateResult
	Formatted formattedCosts `json:"formatted"`
}

type formattedCosts struct {
	TotalCost     string            `json:"total_cost"`
	TotalBudget   string            `json:"total_budget"`
	ByApplication map[string]string `json:"by_application"`
}

func (h *handlers) filters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.FilterOptions())
}

func (h *handlers) costs(c echo.Context) error {
	spec, err := parseFilter(c.QueryParams(), h.svc.FilterOptions())
	if err != nil {
		return err
	}
	res, err := h.svc.ComputeAggregates(c.Request().Context(), spec)
	if err != nil {
		return err
	}

	symbol := h.svc.Settings().CurrencySymbol
	byApp := make(map[string]string, len(res.ByApplication))
	for _, a := range res.ByApplication {
		byApp[a.Application] = cloudspending.FormatMoney(symbol, a.Cost)
	}
	return c.JSON(http.StatusOK, costsResponse{
		AggregateResult: res,
		Formatted: formattedCosts{
			TotalCost:     cloudspending.FormatMoney(symbol, res.TotalCost),
			TotalBudget:   cloudspending.FormatMoney(symbol, res.TotalBudget),
			ByApplication: byApp,
		},
	})
}

func (h *handlers) table(c echo.Context) error {
	params := c.QueryParams()
	spec, err := parseFilter(params, h.svc.FilterOptions())
	if err != nil {
		return err
	}
	q, err := parseTableQuery(params)
	if err != nil {
		return err
	}
	table, err := h.svc.Table(c.Request().Context(), spec, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, table)
}

func (h *handlers) tableCSV(c echo.Context) error {
	params := c.QueryParams()
	spec, err := parseFilter(params, h.svc.FilterOptions())
	if err != nil {
		return err
	}
	q, err := parseTableQuery(params)
	if err != nil {
		return err
	}
	res, err := h.svc.ComputeAggregates(c.Request().Context(), spec)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="costs.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return costcsv.WriteCostTable(c.Response(), cloudspending.SortTable(res.ByResourceGroupApplication, q.SortBy, q.Desc))
}

// records serves the filtered records as is. Unlike the aggregate endpoints
// a failed fetch is an error, never an empty list.
func (h *handlers) records(c echo.Context) error {
	spec, err := parseFilter(c.QueryParams(), h.svc.FilterOptions())
	if err != nil {
		return err
	}
	recs, err := h.svc.Records(c.Request().Context(), spec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *handlers) healthz(c echo.Context) error {
	if h.health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	if err := h.health.Ping(c.Request().Context()); err != nil {
		h.logger.Warn("healthz.failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// parseFilter reads the filter selection from query parameters. Missing dates
// default to the data bounds; a missing env parameter selects every environment
// while an empty one selects none.
func parseFilter(params url.Values, opts cloudspending.FilterOptions) (cloudspending.FilterSpec, error) {
	var spec cloudspending.FilterSpec
	var err error

	if spec.Start, err = parseDateParam(params, "start", opts.MinDate); err != nil {
		return spec, err
	}
	if spec.End, err = parseDateParam(params, "end", opts.MaxDate); err != nil {
		return spec, err
	}

	if _, ok := params["env"]; !ok {
		spec.Environments = cloudspending.CanonicalEnvironments()
	} else if spec.Environments, err = cloudspending.ParseEnvironments(listParam(params, "env")); err != nil {
		return spec, err
	}
	spec.Applications = listParam(params, "app")
	spec.Clusters = listParam(params, "cluster")
	return spec, nil
}

func parseDateParam(params url.Values, name string, fallback *time.Time) (time.Time, error) {
	v := strings.TrimSpace(params.Get(name))
	if v == "" {
		if fallback == nil {
			return time.Time{}, nil
		}
		return *fallback, nil
	}
	t, err := time.Parse(cloudspending.DateLayout, v)
	if err != nil {
		return time.Time{}, cerrors.Input(fmt.Sprintf("%s must be a date formatted as YYYY-MM-DD, got %q", name, v))
	}
	return t, nil
}

// listParam accepts both repeated parameters and comma separated values.
func listParam(params url.Values, name string) []string {
	values := lo.FlatMap(params[name], func(v string, _ int) []string { return strings.Split(v, ",") })
	values = lo.Map(values, func(v string, _ int) string { return strings.TrimSpace(v) })
	return lo.Compact(values)
}

func parseTableQuery(params url.Values) (cloudspending.TableQuery, error) {
	col, err := cloudspending.ParseTableColumn(params.Get("sort"))
	if err != nil {
		return cloudspending.TableQuery{}, err
	}
	q := cloudspending.TableQuery{SortBy: col, Desc: true}
	switch strings.ToLower(params.Get("order")) {
	case "", "desc":
	case "asc":
		q.Desc = false
	default:
		return q, cerrors.Input(fmt.Sprintf("order must be asc or desc, got %q", params.Get("order")))
	}
	if q.Page, err = intParam(params, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(params, "page_size"); err != nil {
		return q, err
	}
	if q.PageSize > cloudspending.MaxPageSize {
		return q, cerrors.Input(fmt.Sprintf("page_size must be at most %d, got %d", cloudspending.MaxPageSize, q.PageSize))
	}
	return q, nil
}

func intParam(params url.Values, name string) (int, error) {
	v := params.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, cerrors.Input(fmt.Sprintf("%s must be a positive integer, got %q", name, v))
	}
	return n, nil
}
