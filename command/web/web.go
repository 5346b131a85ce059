package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cost-dashboard/domain/dashboard"
	cerrors "cost-dashboard/internal/errors"
	"cost-dashboard/internal/logging"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Service *dashboard.Service
	Health  Pinger
	// Registry receives the HTTP metrics and is exposed on /metrics.
	Registry *prometheus.Registry
	Logger   *zap.Logger
	// UIDir optionally points to a built single page app (index.html).
	UIDir string
}

// New builds the Echo server exposing the dashboard APIs and an optional SPA.
//
// Endpoints:
//
//	GET /api/filters             -> filter options and date bounds
//	GET /api/costs               -> aggregates for the selected filters
//	GET /api/costs/table         -> one sorted page of resource group costs
//	GET /api/costs/table.csv     -> the full sorted table as CSV
//	GET /api/records             -> the raw billing records matching the filters
//	GET /healthz                 -> store ping
//	GET /metrics                 -> prometheus metrics
//
// Filter parameters: start, end (YYYY-MM-DD, default to the data bounds), env,
// app, cluster (repeated or comma separated).
func New(opts Options) *echo.Echo {
	logger := logging.OrNop(opts.Logger).Named("web")
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(requestMetrics(opts.Registry))

	h := &handlers{svc: opts.Service, health: opts.Health, logger: logger}
	e.GET("/api/filters", h.filters)
	e.GET("/api/costs", h.costs)
	e.GET("/api/costs/table", h.table)
	e.GET("/api/costs/table.csv", h.tableCSV)
	e.GET("/api/records", h.records)
	e.GET("/healthz", h.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))

	indexPath := ""
	if opts.UIDir != "" {
		p := filepath.Join(opts.UIDir, "index.html")
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			indexPath = p
			e.Static("/", opts.UIDir)
			e.GET("/", func(c echo.Context) error { return c.File(indexPath) })
		}
	}
	e.HTTPErrorHandler = errorHandler(e, indexPath, logger)

	return e
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	errc := make(chan error, 1)
	go func() {
		logger.Info("web.listening", zap.String("addr", addr))
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("web.shutdown")
	return e.Shutdown(shutdownCtx)
}

// errorHandler renders typed errors as JSON and falls back to the SPA index
// for unknown non-API routes.
func errorHandler(e *echo.Echo, indexPath string, logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var typed *cerrors.Error
		if errors.As(err, &typed) {
			status := http.StatusInternalServerError
			if typed.Type == cerrors.TypeInput {
				status = http.StatusBadRequest
			} else {
				logger.Error("request.failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
			}
			_ = c.JSON(status, map[string]any{
				"error":   typed.Type,
				"message": typed.Message,
			})
			return
		}
		// If it's a 404 and not under /api, serve the SPA index instead
		if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound && indexPath != "" {
			if !strings.HasPrefix(c.Request().URL.Path, "/api") {
				_ = c.File(indexPath)
				return
			}
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
