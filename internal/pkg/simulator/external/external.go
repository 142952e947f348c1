// Package external adapts an out-of-process physics engine to the simulator
// capability contract. The core treats the engine as opaque and already
// correct; this adapter only moves models in and results out.
package external

import (
	"context"
	"errors"
	"time"

	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

// Backend is the transport to the physics engine.
type Backend interface {
	// Ping reports whether the engine is reachable and willing to solve.
	Ping(ctx context.Context) error
	// Validate runs engine-side input validation.
	Validate(ctx context.Context, s scenario.Scenario) error
	// Solve runs the engine against a built model. Convergence failures come
	// back as simulator.ConvergenceError, everything else as
	// simulator.RuntimeError.
	Solve(ctx context.Context, m simulator.NetworkModel) (simulator.EngineResult, error)
}

// Engine is the real-mode simulator variant.
type Engine struct {
	backend     Backend
	opts        simulator.BuildOptions
	pingTimeout time.Duration
}

// New returns a real-mode engine speaking to the given backend.
func New(backend Backend, opts simulator.BuildOptions) *Engine {
	return &Engine{backend: backend, opts: opts, pingTimeout: 2 * time.Second}
}

// Mode identifies the variant.
func (e *Engine) Mode() simulator.Mode { return simulator.Real }

// Available pings the backend with a short deadline.
func (e *Engine) Available() bool {
	if e.backend == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.pingTimeout)
	defer cancel()
	return e.backend.Ping(ctx) == nil
}

// Validate runs the shared structural checks, then the engine-side ones.
func (e *Engine) Validate(s scenario.Scenario) error {
	if err := simulator.ValidateScenario(s); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.pingTimeout)
	defer cancel()
	if err := e.backend.Validate(ctx, s); err != nil {
		var ve simulator.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return simulator.ValidationError{Reason: err.Error()}
	}
	return nil
}

// BuildNetwork builds the same physical model the placeholder builds; the
// engines differ in the run, not in the network.
func (e *Engine) BuildNetwork(ctx context.Context, s scenario.Scenario) (simulator.NetworkModel, error) {
	if err := ctx.Err(); err != nil {
		return simulator.NetworkModel{}, simulator.RuntimeError{Reason: "build cancelled", Err: err}
	}
	return simulator.BuildModel(s, e.opts)
}

// Run hands the model to the backend. Deadline and cancellation are reported
// as runtime errors rather than leaking raw context errors.
func (e *Engine) Run(ctx context.Context, m simulator.NetworkModel) (simulator.EngineResult, error) {
	res, err := e.backend.Solve(ctx, m)
	if err == nil {
		return res, nil
	}
	var ce simulator.ConvergenceError
	var re simulator.RuntimeError
	switch {
	case errors.As(err, &ce):
		return simulator.EngineResult{}, ce
	case errors.As(err, &re):
		return simulator.EngineResult{}, re
	case errors.Is(err, context.DeadlineExceeded):
		return simulator.EngineResult{}, simulator.RuntimeError{Reason: "engine run timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return simulator.EngineResult{}, simulator.RuntimeError{Reason: "engine run cancelled", Err: err}
	}
	return simulator.EngineResult{}, simulator.RuntimeError{Reason: "engine run failed", Err: err}
}

// ExtractIndicators returns a copy of the solved indicator map.
func (e *Engine) ExtractIndicators(r simulator.EngineResult) map[string]float64 {
	out := make(map[string]float64, len(r.Indicators))
	for k, v := range r.Indicators {
		out[k] = v
	}
	return out
}
