// Package placeholder is the lightweight estimator engine. It builds the
// same network model as the real engine but replaces the physics run with
// closed-form estimates, so the orchestrator can always fall back to it.
package placeholder

import (
	"context"
	"math"

	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

const (
	groundTempC      = 10.0
	pipeLossWPerMK   = 0.35 // twin pipe, rough
	pumpShareOfHeat  = 0.01
	transformerKVA   = 400.0
	voltDropPctPerKM = 1.2 // per 100 kW at 400 V, rough
)

// Engine implements the simulator capability with rough estimates.
type Engine struct {
	opts simulator.BuildOptions
}

// New returns a placeholder engine building networks with the given options.
func New(opts simulator.BuildOptions) *Engine {
	return &Engine{opts: opts}
}

// Mode identifies the variant.
func (e *Engine) Mode() simulator.Mode { return simulator.Placeholder }

// Available is always true: the estimator has no external dependency.
func (e *Engine) Available() bool { return true }

// Validate applies the shared structural checks.
func (e *Engine) Validate(s scenario.Scenario) error {
	return simulator.ValidateScenario(s)
}

// BuildNetwork builds the physical model the estimates are derived from.
func (e *Engine) BuildNetwork(ctx context.Context, s scenario.Scenario) (simulator.NetworkModel, error) {
	if err := ctx.Err(); err != nil {
		return simulator.NetworkModel{}, simulator.RuntimeError{Reason: "build cancelled", Err: err}
	}
	return simulator.BuildModel(s, e.opts)
}

// Run produces the estimate indicators. It never calls out of process.
func (e *Engine) Run(ctx context.Context, m simulator.NetworkModel) (simulator.EngineResult, error) {
	if err := ctx.Err(); err != nil {
		return simulator.EngineResult{}, simulator.RuntimeError{Reason: "run cancelled", Err: err}
	}
	switch m.Type {
	case scenario.DistrictHeating:
		return e.runHeating(m), nil
	case scenario.HeatPump:
		return e.runHeatPump(m), nil
	}
	return simulator.EngineResult{}, simulator.RuntimeError{Reason: "unknown model type " + string(m.Type)}
}

func (e *Engine) runHeating(m simulator.NetworkModel) simulator.EngineResult {
	heatKW, _ := m.ConnectedLoadKW()
	union := m.Plan.UnionLengthM

	meanTempC := (m.Params.SupplyTempC + m.Params.ReturnTempC) / 2
	lossKW := union * pipeLossWPerMK * (meanTempC - groundTempC) / 1000

	density := 0.0
	if union > 0 {
		density = heatKW / union
	}

	ind := map[string]float64{
		"heat_demand_kw":           heatKW,
		"network_length_total_m":   m.Plan.TotalPathLengthM,
		"network_length_union_m":   union,
		"heat_loss_kw":             lossKW,
		"linear_heat_density_kw_m": density,
		"pump_electricity_kw":      heatKW * pumpShareOfHeat,
		"connected_buildings":      float64(len(m.Plan.Routes)),
		"unreachable_buildings":    float64(len(m.Plan.Unreached)),
		"relative_heat_loss_pct":   relPct(lossKW, heatKW),
	}
	// model warnings are the build stage's to report, not the run's
	return simulator.EngineResult{Indicators: ind}
}

func (e *Engine) runHeatPump(m simulator.NetworkModel) simulator.EngineResult {
	heatKW, baseKW := m.ConnectedLoadKW()

	hpElectricKW := 0.0
	if m.Params.COP > 0 {
		perUnit := m.Params.ThermalPowerPerUnitKW
		if perUnit > 0 {
			hpElectricKW = perUnit * float64(len(m.Plan.Routes)) / m.Params.COP
		} else {
			hpElectricKW = heatKW / m.Params.COP
		}
	}

	// coincidence of independent household peaks
	n := float64(len(m.Plan.Routes))
	coincidence := 1.0
	if n > 1 {
		coincidence = 0.2 + 0.8/math.Sqrt(n)
	}
	peakKW := (baseKW + hpElectricKW) * coincidence
	if !m.Params.ThreePhaseBalancing {
		// unbalanced single-phase connections load the worst phase harder
		peakKW *= 1.15
	}

	maxRunM := 0.0
	for _, r := range m.Plan.Routes {
		if r.LengthM > maxRunM {
			maxRunM = r.LengthM
		}
	}
	avgPerRunKW := 0.0
	if n > 0 {
		avgPerRunKW = peakKW / n
	}
	voltDropPct := voltDropPctPerKM * (maxRunM / 1000) * (avgPerRunKW / 100)

	ind := map[string]float64{
		"transformer_peak_kw":         peakKW,
		"transformer_utilization_pct": relPct(peakKW, transformerKVA),
		"voltage_drop_est_pct":        voltDropPct,
		"cable_length_total_m":        m.Plan.UnionLengthM,
		"hp_electric_demand_kw":       hpElectricKW,
		"connected_buildings":         n,
	}
	return simulator.EngineResult{Indicators: ind}
}

// ExtractIndicators returns a copy of the run's indicator map.
func (e *Engine) ExtractIndicators(r simulator.EngineResult) map[string]float64 {
	out := make(map[string]float64, len(r.Indicators))
	for k, v := range r.Indicators {
		out[k] = v
	}
	return out
}

func relPct(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
