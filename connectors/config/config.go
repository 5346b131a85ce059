package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cost-dashboard/connectors/database"
	domain "cost-dashboard/domain/config"
	cerrors "cost-dashboard/internal/errors"
)

// DefaultPath is read when neither --config nor CONFIG_PATH is set.
const DefaultPath = "config.yml"

// Load builds the configuration from defaults, the YAML file at path, a .env
// file in the working directory and the process environment, in increasing
// order of precedence. A missing file is not an error.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, cerrors.Config("read .env", err)
	}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	c := domain.Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, cerrors.Config("read config file", err).WithContext("path", path)
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, cerrors.Config("parse config file", err).WithContext("path", path)
		}
	}

	if err := applyEnv(&c); err != nil {
		return nil, err
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyEnv(c *domain.Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("DB_HOST", &c.Database.Host)
	str("DB_NAME", &c.Database.Database)
	str("DB_USER", &c.Database.Username)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_TABLE", &c.Database.Table)
	str("AZURE_TENANT_ID", &c.Azure.TenantID)
	str("AZURE_CLIENT_ID", &c.Azure.ClientID)
	str("AZURE_CLIENT_SECRET", &c.Azure.ClientSecret)
	str("LOG_LEVEL", &c.Logging.Level)
	if v, ok := os.LookupEnv("DB_DRIVER"); ok {
		c.Database.Driver = database.Driver(v)
	}
	if v, ok := os.LookupEnv("DB_AUTH"); ok {
		c.Database.Auth = database.AuthMode(v)
	}
	if v, ok := os.LookupEnv("DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cerrors.Config(fmt.Sprintf("DB_PORT %q is not a number", v), err)
		}
		c.Database.Port = port
	}
	return nil
}

// Validate reports every problem of c as one ConfigurationError.
func Validate(c domain.Config) error {
	var merr *multierror.Error
	if err := c.Database.Validate(); err != nil {
		merr = multierror.Append(merr, err)
	}
	if c.Database.Auth == database.AuthAAD && (c.Azure.TenantID == "" || c.Azure.ClientID == "" || c.Azure.ClientSecret == "") {
		merr = multierror.Append(merr, errors.New("aad auth requires azure tenant_id, client_id and client_secret"))
	}
	if c.Dashboard.Budget < 0 {
		merr = multierror.Append(merr, fmt.Errorf("dashboard budget must not be negative, got %v", c.Dashboard.Budget))
	}
	if m := c.Dashboard.Mode; m != "preload" && m != "query" {
		merr = multierror.Append(merr, fmt.Errorf("dashboard mode must be preload or query, got %q", m))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return cerrors.Config("invalid configuration", err)
	}
	return nil
}
