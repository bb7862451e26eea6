// Package checkout parses checkout service flags and launches the service.
package checkout

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/popup.city/internal/platform/cmd"
	server "github.com/louisbranch/popup.city/internal/services/checkout/app"
)

// Config holds checkout command configuration.
type Config struct {
	Port int `env:"POPUP_CITY_CHECKOUT_PORT" envDefault:"8095"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The checkout HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the checkout HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCheckout, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
