// Package config reads lantern's configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"honnef.co/go/lantern/lantern"
)

const Prefix = "LANTERN_"

type Config struct {
	// TrustedRelay applies timing and size headers set by a trusted relay to network records.
	TrustedRelay bool `env:"TRUSTED_RELAY" envDefault:"false"`
	Debug        bool `env:"DEBUG"         envDefault:"false"`

	RTT         float64 `env:"RTT_MS"          envDefault:"150"`
	Throughput  float64 `env:"THROUGHPUT_KBPS" envDefault:"1638.4"`
	CPUSlowdown float64 `env:"CPU_SLOWDOWN"    envDefault:"4"`

	OptimisticMaxConnections   int     `env:"OPTIMISTIC_MAX_CONNECTIONS"          envDefault:"6"`
	PessimisticColdRTTs        int     `env:"PESSIMISTIC_COLD_RTTS"               envDefault:"2"`
	PessimisticThroughputFloor float64 `env:"PESSIMISTIC_THROUGHPUT_FLOOR_KBPS" envDefault:"400"`

	// CacheSize is the number of computed results kept in memory.
	CacheSize int `env:"CACHE_SIZE" envDefault:"64"`
}

// Parse reads the configuration from the process environment.
func Parse() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.RTT < 0 {
		errs = append(errs, fmt.Errorf("%sRTT_MS must not be negative, got %g", Prefix, cfg.RTT))
	}
	if cfg.Throughput <= 0 {
		errs = append(errs, fmt.Errorf("%sTHROUGHPUT_KBPS must be positive, got %g", Prefix, cfg.Throughput))
	}
	if cfg.CPUSlowdown <= 0 {
		errs = append(errs, fmt.Errorf("%sCPU_SLOWDOWN must be positive, got %g", Prefix, cfg.CPUSlowdown))
	}
	if cfg.OptimisticMaxConnections < 1 {
		errs = append(errs, fmt.Errorf("%sOPTIMISTIC_MAX_CONNECTIONS must be at least 1, got %d", Prefix, cfg.OptimisticMaxConnections))
	}
	if cfg.PessimisticColdRTTs < 0 {
		errs = append(errs, fmt.Errorf("%sPESSIMISTIC_COLD_RTTS must not be negative, got %d", Prefix, cfg.PessimisticColdRTTs))
	}
	if cfg.PessimisticThroughputFloor < 0 {
		errs = append(errs, fmt.Errorf("%sPESSIMISTIC_THROUGHPUT_FLOOR_KBPS must not be negative, got %g", Prefix, cfg.PessimisticThroughputFloor))
	}
	if cfg.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("%sCACHE_SIZE must be at least 1, got %d", Prefix, cfg.CacheSize))
	}
	return errors.Join(errs...)
}

// Settings returns the simulation settings described by the configuration.
func (cfg Config) Settings() lantern.Settings {
	return lantern.Settings{
		RTT:                        cfg.RTT,
		Throughput:                 cfg.Throughput,
		CPUSlowdown:                cfg.CPUSlowdown,
		OptimisticMaxConnections:   cfg.OptimisticMaxConnections,
		PessimisticColdRTTs:        cfg.PessimisticColdRTTs,
		PessimisticThroughputFloor: cfg.PessimisticThroughputFloor,
	}
}
