package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/unplab/unp_core/internal/pkg/scenario"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core.json")
	assert.NilError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	assert.NilError(t, Default().validate())
}

func TestNewMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"graph": {"merge_tolerance_m": 1.0, "max_projection_m": 75},
		"simulation": {"use_real_simulation": true, "real_enabled_dh": true, "run_timeout_s": 30},
		"http": {"addr": ":9090"},
		"scenario_defaults": {"supply_temp_c": 90, "return_temp_c": 55, "cop": 3.5, "fallback_on_error": true}
	}`)

	cfg, err := New(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Graph.MergeToleranceM, 1.0)
	assert.Equal(t, cfg.Graph.MaxProjectionM, 75.0)
	assert.Equal(t, cfg.Simulation.UseRealSimulation, true)
	assert.Equal(t, cfg.Simulation.RunTimeoutS, 30.0)
	assert.Equal(t, cfg.HTTP.Addr, ":9090")
	assert.Equal(t, cfg.Defaults.SupplyTempC, 90.0)

	// untouched sections keep their defaults
	assert.Equal(t, cfg.Cache.Backend, "memory")
	assert.Equal(t, cfg.Cache.MaxEntries, 256)
}

func TestNewMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.json"))
	var ce scenario.ConfigurationError
	assert.Assert(t, errors.As(err, &ce))
}

func TestNewMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"graph": `)
	_, err := New(path)
	var ce scenario.ConfigurationError
	assert.Assert(t, errors.As(err, &ce))
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		expect string
	}{
		{"negative tolerance", `{"graph": {"merge_tolerance_m": -1, "max_projection_m": 50}}`, "merge_tolerance_m"},
		{"zero projection", `{"graph": {"max_projection_m": 0}}`, "max_projection_m"},
		{"zero timeout", `{"simulation": {"run_timeout_s": 0}}`, "run_timeout_s"},
		{"unknown cache backend", `{"cache": {"backend": "memcached", "max_entries": 10}}`, "backend"},
		{"redis without addr", `{"cache": {"backend": "redis", "max_entries": 10}}`, "redis_addr"},
		{"zero cache size", `{"cache": {"backend": "memory", "max_entries": 0}}`, "max_entries"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(writeConfig(t, c.body))
			assert.ErrorContains(t, err, c.expect)
		})
	}
}
