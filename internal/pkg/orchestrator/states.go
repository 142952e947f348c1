package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unplab/unp_core/internal/pkg/config"
	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

// frame carries one run through the state machine.
type frame struct {
	scn scenario.Scenario
	fp  string
	cfg config.Config

	real        simulator.Simulator
	placeholder simulator.Simulator

	sim              simulator.Simulator
	forcePlaceholder bool
	fellBack         bool

	model      simulator.NetworkModel
	modelBuilt bool
	engineRes  simulator.EngineResult
	indicators map[string]float64

	// buildWarnings is replaced on every build_network entry, so a fallback
	// re-build does not duplicate them; warnings accumulates everything else.
	buildWarnings []string
	warnings      []string
	traversed     []string
	elapsed       time.Duration

	failStage string
	failErr   error
}

// stage is one state of the run machine. step returns the next stage, or nil
// when the run reached Succeeded; a non-nil error is the terminal Failed
// outcome.
type stage interface {
	name() string
	step(ctx context.Context, f *frame) (stage, error)
}

type selectStage struct{}

func (selectStage) name() string { return "select_simulator" }

// step chooses the engine variant: the real engine only when the master
// flag, the per-type flag, the scenario and its availability all agree, and
// no fallback has forced the placeholder.
func (selectStage) step(_ context.Context, f *frame) (stage, error) {
	if f.forcePlaceholder {
		f.sim = f.placeholder
		return validateStage{}, nil
	}
	if f.scn.Params.UseRealSimulation &&
		f.cfg.Simulation.UseRealSimulation &&
		realEnabledFor(f.cfg, f.scn.Type) &&
		f.real != nil && f.real.Available() {
		f.sim = f.real
		return validateStage{}, nil
	}
	f.sim = f.placeholder
	return validateStage{}, nil
}

func realEnabledFor(cfg config.Config, t scenario.Type) bool {
	switch t {
	case scenario.DistrictHeating:
		return cfg.Simulation.RealEnabledDH
	case scenario.HeatPump:
		return cfg.Simulation.RealEnabledHP
	}
	return false
}

type validateStage struct{}

func (validateStage) name() string { return "validate" }

// step validates caller input. Bad input is not recoverable by switching
// engines, so there is never a fallback from here.
func (validateStage) step(_ context.Context, f *frame) (stage, error) {
	if err := f.sim.Validate(f.scn); err != nil {
		var ve simulator.ValidationError
		if !errors.As(err, &ve) {
			err = simulator.ValidationError{Reason: err.Error()}
		}
		return nil, err
	}
	return buildStage{}, nil
}

type buildStage struct{}

func (buildStage) name() string { return "build_network" }

func (buildStage) step(ctx context.Context, f *frame) (stage, error) {
	model, err := f.sim.BuildNetwork(ctx, f.scn)
	if err != nil {
		var nce simulator.NetworkCreationError
		if errors.As(err, &nce) && fallbackAllowed(f) {
			fallBack(f, "build_network", err)
			return selectStage{}, nil
		}
		return nil, err
	}
	f.model = model
	f.modelBuilt = true
	f.buildWarnings = model.Warnings
	return runStage{}, nil
}

type runStage struct{}

func (runStage) name() string { return "run" }

// step invokes the engine run under the configured timeout. Convergence and
// runtime failures are eligible for one fallback attempt against the
// placeholder; retrying the identical engine on identical input is pointless.
func (runStage) step(ctx context.Context, f *frame) (stage, error) {
	timeout := time.Duration(f.cfg.Simulation.RunTimeoutS * float64(time.Second))
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := f.sim.Run(rctx, f.model)
	if err != nil {
		if runFallbackEligible(err) && fallbackAllowed(f) {
			fallBack(f, "run", err)
			return selectStage{}, nil
		}
		return nil, err
	}
	f.engineRes = res
	f.warnings = append(f.warnings, res.Warnings...)
	return extractStage{}, nil
}

func runFallbackEligible(err error) bool {
	var ce simulator.ConvergenceError
	var re simulator.RuntimeError
	return errors.As(err, &ce) || errors.As(err, &re)
}

type extractStage struct{}

func (extractStage) name() string { return "extract_indicators" }

// step pulls the indicator map. Extraction cannot fail independently of a
// successful run, and it deliberately ignores caller cancellation: a result
// the engine already produced is not discarded.
func (extractStage) step(_ context.Context, f *frame) (stage, error) {
	f.indicators = f.sim.ExtractIndicators(f.engineRes)
	return nil, nil
}

// allWarnings merges the current build's warnings with the stage-level ones.
// Never nil, so results serialize with an empty list rather than null.
func (f *frame) allWarnings() []string {
	out := make([]string, 0, len(f.buildWarnings)+len(f.warnings))
	out = append(out, f.buildWarnings...)
	out = append(out, f.warnings...)
	return out
}

func fallbackAllowed(f *frame) bool {
	return f.scn.Params.FallbackOnError &&
		!f.fellBack &&
		f.sim != nil &&
		f.sim.Mode() == simulator.Real
}

func fallBack(f *frame, stageName string, cause error) {
	f.fellBack = true
	f.forcePlaceholder = true
	f.warnings = append(f.warnings,
		fmt.Sprintf("placeholder engine used: real engine failed during %s: %v", stageName, cause))
}
