package database

import (
	"context"
	"database/sql/driver"
	"fmt"
)

// PasswordFunc supplies the store password each time a physical connection is opened.
type PasswordFunc func(ctx context.Context) (string, error)

// tokenConnector renders a fresh DSN per connection so that short-lived
// credentials (Azure AD tokens) are picked up when the pool recycles.
type tokenConnector struct {
	drv      driver.Driver
	cfg      Config
	password PasswordFunc
}

func (c *tokenConnector) Connect(ctx context.Context) (driver.Conn, error) {
	password, err := c.password(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain store password: %w", err)
	}
	dsn := dialects[c.cfg.Driver].dsn(c.cfg, password)
	if dc, ok := c.drv.(driver.DriverContext); ok {
		connector, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		return connector.Connect(ctx)
	}
	return c.drv.Open(dsn)
}

func (c *tokenConnector) Driver() driver.Driver {
	return c.drv
}
