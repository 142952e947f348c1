package scenario

import (
	"github.com/unplab/unp_core/internal/pkg/geom"
	"github.com/unplab/unp_core/internal/pkg/topology"
)

// Type selects the network kind a scenario plans.
type Type string

const (
	// DistrictHeating plans a shared thermal pipe network with a central plant.
	DistrictHeating Type = "DH"
	// HeatPump plans distributed electric heating load on a local grid.
	HeatPump Type = "HP"
)

// Valid reports whether t is a known scenario type.
func (t Type) Valid() bool {
	return t == DistrictHeating || t == HeatPump
}

// Building is one consumer record. Geometry is a point (one coordinate) or a
// polygon outline; the service point is its centroid.
type Building struct {
	ID             string       `json:"id"`
	Geometry       []geom.Point `json:"geometry"`
	HeatingLoadKW  float64      `json:"heating_load_kw"`
	ElectricLoadKW float64      `json:"base_electric_load_kw"`
}

// ServicePoint returns the point the building connects from.
func (b Building) ServicePoint() geom.Point {
	return geom.Centroid(b.Geometry)
}

// Scenario is one immutable planning request. Callers construct it once and
// never mutate it after submission.
type Scenario struct {
	Name      string                   `json:"name"`
	Type      Type                     `json:"type"`
	Buildings []Building               `json:"buildings"`
	Plant     geom.Point               `json:"plant"`
	Streets   []topology.StreetSegment `json:"streets"`
	Params    Params                   `json:"params"`
}
