// Package gateway parses gateway command flags and launches the gateway runtime.
package gateway

import (
	"context"
	"flag"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/app"
	entrypoint "github.com/louisbranch/cachegate/internal/platform/cmd"
)

// Config holds gateway command configuration.
type Config struct {
	ProxyPort       int           `env:"CACHEGATE_GATEWAY_PROXY_PORT" envDefault:"8080"`
	OpsPort         int           `env:"CACHEGATE_GATEWAY_OPS_PORT" envDefault:"8081"`
	HealthPort      int           `env:"CACHEGATE_GATEWAY_HEALTH_PORT" envDefault:"8082"`
	DBPath          string        `env:"CACHEGATE_GATEWAY_DB_PATH" envDefault:"data/cachegate.db"`
	CacheVersion    string        `env:"CACHEGATE_GATEWAY_CACHE_VERSION" envDefault:"1"`
	Origin          string        `env:"CACHEGATE_GATEWAY_ORIGIN"`
	RulesPath       string        `env:"CACHEGATE_GATEWAY_RULES_PATH"`
	InstallPolicy   string        `env:"CACHEGATE_GATEWAY_INSTALL_POLICY" envDefault:"best-effort"`
	NetworkTimeout  time.Duration `env:"CACHEGATE_GATEWAY_NETWORK_TIMEOUT" envDefault:"10s"`
	CleanupInterval time.Duration `env:"CACHEGATE_GATEWAY_CLEANUP_INTERVAL" envDefault:"1h"`
	Retention       time.Duration `env:"CACHEGATE_GATEWAY_RETENTION" envDefault:"168h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.ProxyPort, "proxy-port", cfg.ProxyPort, "The caching proxy port")
	fs.IntVar(&cfg.OpsPort, "ops-port", cfg.OpsPort, "The ops and control channel port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The gateway health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The cache SQLite database path (empty runs in memory)")
	fs.StringVar(&cfg.CacheVersion, "cache-version", cfg.CacheVersion, "The cache generation served by this process")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "The application origin warmed during install")
	fs.StringVar(&cfg.RulesPath, "rules-path", cfg.RulesPath, "Lua routing rules file replacing the default table")
	fs.StringVar(&cfg.InstallPolicy, "install-policy", cfg.InstallPolicy, "Install manifest policy: best-effort or strict")
	fs.DurationVar(&cfg.NetworkTimeout, "network-timeout", cfg.NetworkTimeout, "Bounded wait for network-first fetches")
	fs.DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "Interval between retention sweeps")
	fs.DurationVar(&cfg.Retention, "retention", cfg.Retention, "Maximum age of dynamic and API cache entries")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the gateway runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGateway, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			ProxyPort:       cfg.ProxyPort,
			OpsPort:         cfg.OpsPort,
			HealthPort:      cfg.HealthPort,
			DBPath:          cfg.DBPath,
			Version:         cfg.CacheVersion,
			Origin:          cfg.Origin,
			RulesPath:       cfg.RulesPath,
			InstallPolicy:   cfg.InstallPolicy,
			NetworkTimeout:  cfg.NetworkTimeout,
			CleanupInterval: cfg.CleanupInterval,
			Retention:       cfg.Retention,
		})
	})
}
