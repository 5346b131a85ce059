package config

import (
	"time"

	"cost-dashboard/connectors/azure"
	"cost-dashboard/connectors/database"
	"cost-dashboard/internal/logging"
)

// Config represents the structure of config.yml used by the tool.
type Config struct {
	Database  database.Config `yaml:"database"`
	Azure     azure.Config    `yaml:"azure"`
	Logging   logging.Config  `yaml:"logging"`
	Dashboard Dashboard       `yaml:"dashboard"`
	Web       Web             `yaml:"web"`
}

// Dashboard holds the display and data loading settings.
type Dashboard struct {
	Budget         float64 `yaml:"budget"`
	CurrencySymbol string  `yaml:"currency_symbol"`
	// Mode is "preload" (load the whole table once) or "query" (fetch per request).
	Mode         string        `yaml:"mode"`
	PageSize     int           `yaml:"page_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type Web struct {
	Addr string `yaml:"addr"`
	// UI is an optional directory holding a built single page app.
	UI string `yaml:"ui"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Database: database.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
		Dashboard: Dashboard{
			Budget:         25000,
			CurrencySymbol: "€",
			Mode:           "preload",
			PageSize:       10,
			FetchTimeout:   time.Minute,
		},
		Web: Web{Addr: ":8080"},
	}
}
