package database

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"

	cerrors "cost-dashboard/internal/errors"
)

// Driver names a supported relational store
type Driver string

const (
	MySQL      Driver = "mysql"
	Postgres   Driver = "postgres"
	ClickHouse Driver = "clickhouse"
)

// AuthMode selects how the store password is obtained
type AuthMode string

const (
	// AuthPassword uses the configured static password
	AuthPassword AuthMode = "password"
	// AuthAAD uses an Azure AD access token as password, refreshed per connection
	AuthAAD AuthMode = "aad"
)

// RetryConfig controls retries of transient query failures
type RetryConfig struct {
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Jitter          bool          `yaml:"jitter"`
}

// Config holds the connection and pool settings
type Config struct {
	Driver   Driver            `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"name"`
	Username string            `yaml:"user"`
	Password string            `yaml:"password"`
	Table    string            `yaml:"table"`
	Params   map[string]string `yaml:"params"`
	Auth     AuthMode          `yaml:"auth"`

	PoolSize       int           `yaml:"pool_size"`
	MaxOverflow    int           `yaml:"max_overflow"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
	PoolRecycle    time.Duration `yaml:"pool_recycle"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	Retry RetryConfig `yaml:"retry"`
}

// DefaultTable is the billing table read by the dashboard.
const DefaultTable = "azure_costs"

// DefaultConfig returns default pool and retry settings without connection details.
func DefaultConfig() Config {
	return Config{
		Driver:         MySQL,
		Table:          DefaultTable,
		Auth:           AuthPassword,
		PoolSize:       5,
		MaxOverflow:    10,
		PoolTimeout:    30 * time.Second,
		PoolRecycle:    30 * time.Minute,
		ConnectTimeout: 10 * time.Second,
		Retry: RetryConfig{
			Attempts:        3,
			InitialInterval: 4 * time.Second,
			MaxInterval:     10 * time.Second,
		},
	}
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate reports every problem with the configuration as one ConfigurationError.
func (c Config) Validate() error {
	var merr *multierror.Error
	if _, ok := dialects[c.Driver]; !ok {
		merr = multierror.Append(merr, fmt.Errorf("unsupported driver %q", c.Driver))
	}
	if c.Host == "" {
		merr = multierror.Append(merr, fmt.Errorf("host is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		merr = multierror.Append(merr, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Database == "" {
		merr = multierror.Append(merr, fmt.Errorf("database name is required"))
	}
	if c.Username == "" {
		merr = multierror.Append(merr, fmt.Errorf("user is required"))
	}
	if !tableName.MatchString(c.Table) {
		merr = multierror.Append(merr, fmt.Errorf("invalid table name %q", c.Table))
	}
	switch c.Auth {
	case "", AuthPassword:
	case AuthAAD:
		if c.Driver == ClickHouse {
			merr = multierror.Append(merr, fmt.Errorf("aad auth is not supported for clickhouse"))
		}
	default:
		merr = multierror.Append(merr, fmt.Errorf("unsupported auth mode %q", c.Auth))
	}
	if c.PoolSize < 1 {
		merr = multierror.Append(merr, fmt.Errorf("pool_size must be at least 1"))
	}
	if c.MaxOverflow < 0 {
		merr = multierror.Append(merr, fmt.Errorf("max_overflow must not be negative"))
	}
	if c.Retry.Attempts < 1 {
		merr = multierror.Append(merr, fmt.Errorf("retry attempts must be at least 1"))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return cerrors.Config("invalid database configuration", err)
	}
	return nil
}

func (c Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	return dialects[c.Driver].defaultPort
}
