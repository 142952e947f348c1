// Package config loads the immutable process configuration. A Config is
// constructed once at startup and passed by value into constructors;
// reloading produces a new value, never a mutation of the old one.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/unplab/unp_core/internal/pkg/scenario"
)

// Graph holds the topology construction knobs.
type Graph struct {
	MergeToleranceM float64 `json:"merge_tolerance_m"`
	MaxEdgeLengthM  float64 `json:"max_edge_length_m"`
	MaxProjectionM  float64 `json:"max_projection_m"`
}

// Simulation holds engine selection and run policy.
type Simulation struct {
	// UseRealSimulation is the master enable for the physics engine.
	UseRealSimulation bool `json:"use_real_simulation"`
	// RealEnabledDH / RealEnabledHP gate the real engine per scenario type.
	RealEnabledDH bool    `json:"real_enabled_dh"`
	RealEnabledHP bool    `json:"real_enabled_hp"`
	RunTimeoutS   float64 `json:"run_timeout_s"`
}

// Cache holds the result cache policy.
type Cache struct {
	Backend    string `json:"backend"` // "memory" or "redis"
	TTLSeconds int    `json:"ttl_s"`
	MaxEntries int    `json:"max_entries"`
	RedisAddr  string `json:"redis_addr"`
	RedisDB    int    `json:"redis_db"`
}

// HTTP holds the web service listen address.
type HTTP struct {
	Addr string `json:"addr"`
}

// EngineBackend points at the out-of-process physics engine, if any.
type EngineBackend struct {
	URL string `json:"url"`
}

// Config is the immutable process configuration.
type Config struct {
	Graph         Graph           `json:"graph"`
	Simulation    Simulation      `json:"simulation"`
	Cache         Cache           `json:"cache"`
	HTTP          HTTP            `json:"http"`
	EngineBackend EngineBackend   `json:"engine_backend"`
	Defaults      scenario.Params `json:"scenario_defaults"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Graph: Graph{
			MergeToleranceM: 0.5,
			MaxEdgeLengthM:  0,
			MaxProjectionM:  50,
		},
		Simulation: Simulation{
			UseRealSimulation: false,
			RealEnabledDH:     true,
			RealEnabledHP:     true,
			RunTimeoutS:       120,
		},
		Cache: Cache{
			Backend:    "memory",
			TTLSeconds: 3600,
			MaxEntries: 256,
		},
		HTTP: HTTP{Addr: ":8080"},
		Defaults: scenario.Params{
			FallbackOnError: true,
			CacheTTLS:       3600,
			SupplyTempC:     80,
			ReturnTempC:     50,
			COP:             3.5,
		},
	}
}

// New reads a JSON configuration file over the defaults and validates it.
func New(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, scenario.ConfigurationError{Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, scenario.ConfigurationError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Graph.MergeToleranceM < 0 {
		return scenario.ConfigurationError{Reason: "graph.merge_tolerance_m must not be negative"}
	}
	if c.Graph.MaxProjectionM <= 0 {
		return scenario.ConfigurationError{Reason: "graph.max_projection_m must be positive"}
	}
	if c.Simulation.RunTimeoutS <= 0 {
		return scenario.ConfigurationError{Reason: "simulation.run_timeout_s must be positive"}
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return scenario.ConfigurationError{Reason: fmt.Sprintf("cache.backend %q is not supported", c.Cache.Backend)}
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return scenario.ConfigurationError{Reason: "cache.redis_addr required for the redis backend"}
	}
	if c.Cache.MaxEntries <= 0 {
		return scenario.ConfigurationError{Reason: "cache.max_entries must be positive"}
	}
	return nil
}
