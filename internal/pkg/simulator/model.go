package simulator

import (
	"fmt"
	"math"

	"github.com/unplab/unp_core/internal/pkg/geom"
	"github.com/unplab/unp_core/internal/pkg/routing"
	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/topology"
)

// BuildOptions carries the topology knobs engines build networks with.
type BuildOptions struct {
	MergeToleranceM float64
	MaxEdgeLengthM  float64
	MaxProjectionM  float64
}

// NetworkModel is a built physical network ready to run: the routed plan
// plus the building records it serves. Each run builds its own model; models
// are never shared between runs.
type NetworkModel struct {
	Type      scenario.Type
	Plan      routing.Plan
	Buildings []scenario.Building
	Params    scenario.Params
	NodeCount int
	EdgeCount int
	Warnings  []string
}

// EngineResult is the raw outcome of one engine run.
type EngineResult struct {
	Indicators map[string]float64
	Warnings   []string
}

// Result is the standardized outcome of one orchestrated scenario run.
// Immutable after creation; cached copies must not be mutated by callers.
type Result struct {
	Success        bool               `json:"success"`
	Scenario       string             `json:"scenario"`
	Type           scenario.Type      `json:"type"`
	Mode           Mode               `json:"mode"`
	Fingerprint    string             `json:"fingerprint"`
	Indicators     map[string]float64 `json:"indicators"`
	Metadata       map[string]string  `json:"metadata"`
	Error          string             `json:"error,omitempty"`
	Warnings       []string           `json:"warnings"`
	ExecutionTimeS float64            `json:"execution_time_s"`
}

// BuildModel constructs the network model for a scenario. District heating
// routes through the street graph; heat pump grids connect buildings
// radially to the transformer. Both engine variants build identically, so a
// model reflects the scenario, not the engine.
func BuildModel(s scenario.Scenario, opt BuildOptions) (NetworkModel, error) {
	kept, warnings := filterByBuffer(s)
	if len(kept) == 0 {
		return NetworkModel{}, NetworkCreationError{
			Reason: fmt.Sprintf("no building within buffer_m=%.0f of the network", s.Params.BufferM),
		}
	}

	switch s.Type {
	case scenario.DistrictHeating:
		return buildHeatingModel(s, kept, warnings, opt)
	case scenario.HeatPump:
		return buildHeatPumpModel(s, kept, warnings)
	}
	return NetworkModel{}, NetworkCreationError{Reason: "unknown scenario type " + string(s.Type)}
}

func buildHeatingModel(s scenario.Scenario, kept []scenario.Building, warnings []string, opt BuildOptions) (NetworkModel, error) {
	g, err := topology.FromSegments(s.Streets, topology.Options{
		MergeToleranceM: opt.MergeToleranceM,
		MaxEdgeLengthM:  opt.MaxEdgeLengthM,
	})
	if err != nil {
		return NetworkModel{}, NetworkCreationError{Reason: "street graph", Err: err}
	}

	plantVNs, err := topology.ProjectServicePoints(g,
		[]topology.ServicePoint{{Owner: "plant", Pos: s.Plant}}, opt.MaxProjectionM)
	if err != nil {
		return NetworkModel{}, NetworkCreationError{Reason: "plant projection", Err: err}
	}

	points := make([]topology.ServicePoint, 0, len(kept))
	for _, b := range kept {
		points = append(points, topology.ServicePoint{Owner: b.ID, Pos: b.ServicePoint()})
	}
	buildingVNs, err := topology.ProjectServicePoints(g, points, opt.MaxProjectionM)
	if err != nil {
		return NetworkModel{}, NetworkCreationError{Reason: "building projection", Err: err}
	}

	plan, err := routing.PlanRoutes(g, plantVNs[0], buildingVNs)
	if err != nil {
		return NetworkModel{}, NetworkCreationError{Reason: "routing", Err: err}
	}
	for _, u := range plan.Unreached {
		warnings = append(warnings, fmt.Sprintf("building %s unreachable: %s", u.Owner, u.Reason))
	}

	return NetworkModel{
		Type:      s.Type,
		Plan:      plan,
		Buildings: kept,
		Params:    s.Params,
		NodeCount: g.NodeCount(),
		EdgeCount: g.EdgeCount(),
		Warnings:  warnings,
	}, nil
}

func buildHeatPumpModel(s scenario.Scenario, kept []scenario.Building, warnings []string) (NetworkModel, error) {
	points := make([]topology.ServicePoint, 0, len(kept))
	for _, b := range kept {
		points = append(points, topology.ServicePoint{Owner: b.ID, Pos: b.ServicePoint()})
	}
	plan := routing.Star(s.Plant, points)
	return NetworkModel{
		Type:      s.Type,
		Plan:      plan,
		Buildings: kept,
		Params:    s.Params,
		NodeCount: len(kept) + 1,
		EdgeCount: len(kept),
		Warnings:  warnings,
	}, nil
}

// filterByBuffer drops buildings outside the buffer_m radius: for heating
// scenarios the distance to the nearest street, for heat pump scenarios the
// distance to the transformer. A zero buffer keeps everything.
func filterByBuffer(s scenario.Scenario) ([]scenario.Building, []string) {
	if s.Params.BufferM <= 0 {
		return s.Buildings, nil
	}
	var kept []scenario.Building
	var warnings []string
	for _, b := range s.Buildings {
		var d float64
		switch s.Type {
		case scenario.DistrictHeating:
			d = distToStreets(b.ServicePoint(), s.Streets)
		default:
			d = geom.Dist(b.ServicePoint(), s.Plant)
		}
		if d > s.Params.BufferM {
			warnings = append(warnings,
				fmt.Sprintf("building %s outside buffer (%.1f m > %.1f m), excluded", b.ID, d, s.Params.BufferM))
			continue
		}
		kept = append(kept, b)
	}
	return kept, warnings
}

func distToStreets(p geom.Point, streets []topology.StreetSegment) float64 {
	best := math.Inf(1)
	for _, seg := range streets {
		for i := 1; i < len(seg.Points); i++ {
			_, _, d := geom.ProjectOntoSegment(p, seg.Points[i-1], seg.Points[i])
			if d < best {
				best = d
			}
		}
	}
	return best
}

// BuildingByOwner finds the building record behind a routed owner id.
func (m NetworkModel) BuildingByOwner(owner string) (scenario.Building, bool) {
	for _, b := range m.Buildings {
		if b.ID == owner {
			return b, true
		}
	}
	return scenario.Building{}, false
}

// ConnectedLoadKW sums the heating and electric loads of routed buildings.
func (m NetworkModel) ConnectedLoadKW() (heatKW, electricKW float64) {
	for _, r := range m.Plan.Routes {
		if b, ok := m.BuildingByOwner(r.Owner); ok {
			heatKW += b.HeatingLoadKW
			electricKW += b.ElectricLoadKW
		}
	}
	return heatKW, electricKW
}
