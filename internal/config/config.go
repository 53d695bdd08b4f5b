package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Annealing struct {
		// MaxConcurrentRuns bounds how many runs the server executes at once.
		MaxConcurrentRuns int `env:"ANNEAL_MAX_CONCURRENT_RUNS" envDefault:"4"`
		// DefaultSeed is used for runs that do not set one; 0 means clock-seeded.
		DefaultSeed int64 `env:"ANNEAL_DEFAULT_SEED" envDefault:"0"`
		// HistoryLimit caps the accepted moves kept per run.
		HistoryLimit int `env:"ANNEAL_HISTORY_LIMIT" envDefault:"10000"`
		// RunTimeout bounds a single run; 0 disables the limit.
		RunTimeout time.Duration `env:"ANNEAL_RUN_TIMEOUT" envDefault:"5m"`
	}
	Metrics struct {
		Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	}
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Development gets verbose logs unless told otherwise
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if cfg.Annealing.MaxConcurrentRuns < 1 {
		cfg.Annealing.MaxConcurrentRuns = 1
	}

	return cfg, nil
}
