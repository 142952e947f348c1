package simulator

import (
	"context"

	"github.com/unplab/unp_core/internal/pkg/scenario"
)

// Mode identifies which engine variant produced a result.
type Mode string

const (
	// Real is the physics-backed engine.
	Real Mode = "real"
	// Placeholder is the lightweight estimator.
	Placeholder Mode = "placeholder"
)

// Simulator is the capability contract every engine variant satisfies. The
// orchestrator drives it through validate, build, run and extract; it never
// reaches into engine internals.
type Simulator interface {
	Mode() Mode
	// Available reports whether the engine can be used at all.
	Available() bool
	// Validate rejects defective caller input. Validation failures are never
	// recovered by switching engines.
	Validate(s scenario.Scenario) error
	// BuildNetwork produces the physical network model for the scenario.
	BuildNetwork(ctx context.Context, s scenario.Scenario) (NetworkModel, error)
	// Run executes the engine against a built model.
	Run(ctx context.Context, m NetworkModel) (EngineResult, error)
	// ExtractIndicators pulls the standardized indicator map from an engine
	// result. Engine authors guarantee it cannot fail once Run succeeded.
	ExtractIndicators(r EngineResult) map[string]float64
}

// ValidationError reports defective caller-supplied input.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NetworkCreationError reports a failed network model build. The underlying
// routing or topology error is wrapped.
type NetworkCreationError struct {
	Reason string
	Err    error
}

func (e NetworkCreationError) Error() string {
	if e.Err != nil {
		return "network creation: " + e.Reason + ": " + e.Err.Error()
	}
	return "network creation: " + e.Reason
}

func (e NetworkCreationError) Unwrap() error { return e.Err }

// ConvergenceError reports that the solver did not converge.
type ConvergenceError struct {
	Reason string
}

func (e ConvergenceError) Error() string {
	return "convergence: " + e.Reason
}

// RuntimeError reports an engine run failure, including timeouts and
// cancellations of the run call.
type RuntimeError struct {
	Reason string
	Err    error
}

func (e RuntimeError) Error() string {
	if e.Err != nil {
		return "simulation runtime: " + e.Reason + ": " + e.Err.Error()
	}
	return "simulation runtime: " + e.Reason
}

func (e RuntimeError) Unwrap() error { return e.Err }

// ValidateScenario performs the structural checks shared by all engine
// variants.
func ValidateScenario(s scenario.Scenario) error {
	if s.Name == "" {
		return ValidationError{Reason: "scenario name is empty"}
	}
	if !s.Type.Valid() {
		return ValidationError{Reason: "unknown scenario type " + string(s.Type)}
	}
	if len(s.Buildings) == 0 {
		return ValidationError{Reason: "scenario has no buildings"}
	}
	seen := make(map[string]struct{}, len(s.Buildings))
	for _, b := range s.Buildings {
		if b.ID == "" {
			return ValidationError{Reason: "building with empty id"}
		}
		if _, dup := seen[b.ID]; dup {
			return ValidationError{Reason: "duplicate building id " + b.ID}
		}
		seen[b.ID] = struct{}{}
		if len(b.Geometry) == 0 {
			return ValidationError{Reason: "building " + b.ID + " has no geometry"}
		}
		if b.HeatingLoadKW < 0 || b.ElectricLoadKW < 0 {
			return ValidationError{Reason: "building " + b.ID + " has a negative load"}
		}
	}
	switch s.Type {
	case scenario.DistrictHeating:
		if len(s.Streets) == 0 {
			return ValidationError{Reason: "district heating scenario has no street geometry"}
		}
		if s.Params.SupplyTempC <= s.Params.ReturnTempC {
			return ValidationError{Reason: "supply temperature must exceed return temperature"}
		}
	case scenario.HeatPump:
		if s.Params.COP <= 0 {
			return ValidationError{Reason: "heat pump scenario needs a positive COP"}
		}
	}
	return nil
}
