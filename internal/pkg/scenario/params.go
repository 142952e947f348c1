package scenario

import (
	"fmt"
	"math"
)

// Params are the resolved scenario parameters after merging process defaults
// with per-scenario overrides. The value is immutable once resolved.
type Params struct {
	UseRealSimulation     bool    `json:"use_real_simulation"`
	FallbackOnError       bool    `json:"fallback_on_error"`
	CacheTTLS             int     `json:"cache_ttl_s"`
	BufferM               float64 `json:"buffer_m"`
	SupplyTempC           float64 `json:"supply_temp_c"`
	ReturnTempC           float64 `json:"return_temp_c"`
	ThermalPowerPerUnitKW float64 `json:"thermal_power_per_unit_kw"`
	COP                   float64 `json:"cop"`
	ThreePhaseBalancing   bool    `json:"three_phase_balancing"`
}

// ConfigurationError reports an unusable parameter or configuration value.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// ResolveParams merges overrides into defaults. Unknown keys and mistyped
// values are rejected; callers get the same Params for the same inputs, which
// keeps scenario fingerprints stable.
func ResolveParams(defaults Params, overrides map[string]interface{}) (Params, error) {
	p := defaults
	for key, raw := range overrides {
		var err error
		switch key {
		case "use_real_simulation":
			p.UseRealSimulation, err = asBool(key, raw)
		case "fallback_on_error":
			p.FallbackOnError, err = asBool(key, raw)
		case "cache_ttl_s":
			p.CacheTTLS, err = asInt(key, raw)
		case "buffer_m":
			p.BufferM, err = asFloat(key, raw)
		case "supply_temp_c":
			p.SupplyTempC, err = asFloat(key, raw)
		case "return_temp_c":
			p.ReturnTempC, err = asFloat(key, raw)
		case "thermal_power_per_unit_kw":
			p.ThermalPowerPerUnitKW, err = asFloat(key, raw)
		case "cop":
			p.COP, err = asFloat(key, raw)
		case "three_phase_balancing":
			p.ThreePhaseBalancing, err = asBool(key, raw)
		default:
			return Params{}, ConfigurationError{Reason: fmt.Sprintf("unknown parameter %q", key)}
		}
		if err != nil {
			return Params{}, err
		}
	}
	if p.CacheTTLS < 0 {
		return Params{}, ConfigurationError{Reason: "cache_ttl_s must not be negative"}
	}
	if p.BufferM < 0 {
		return Params{}, ConfigurationError{Reason: "buffer_m must not be negative"}
	}
	return p, nil
}

func asBool(key string, raw interface{}) (bool, error) {
	b, ok := raw.(bool)
	if !ok {
		return false, ConfigurationError{Reason: fmt.Sprintf("parameter %q expects a bool, got %T", key, raw)}
	}
	return b, nil
}

func asFloat(key string, raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, ConfigurationError{Reason: fmt.Sprintf("parameter %q expects a number, got %T", key, raw)}
}

func asInt(key string, raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, ConfigurationError{Reason: fmt.Sprintf("parameter %q expects an integer", key)}
		}
		return int(v), nil
	}
	return 0, ConfigurationError{Reason: fmt.Sprintf("parameter %q expects an integer, got %T", key, raw)}
}
