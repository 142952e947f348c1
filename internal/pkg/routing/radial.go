package routing

import (
	"sort"

	"github.com/unplab/unp_core/internal/pkg/geom"
	"github.com/unplab/unp_core/internal/pkg/topology"
)

// Star builds a radial plan connecting every service point straight to a
// central node (the transformer in a heat-pump grid). No street graph is
// consulted; each run is its own cable, so the union length equals the total.
func Star(center geom.Point, points []topology.ServicePoint) Plan {
	ordered := make([]topology.ServicePoint, len(points))
	copy(ordered, points)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Owner < ordered[j].Owner })

	plan := Plan{}
	for _, sp := range ordered {
		length := geom.Dist(center, sp.Pos)
		plan.Routes = append(plan.Routes, Route{Owner: sp.Owner, LengthM: length})
		plan.TotalPathLengthM += length
		plan.UnionLengthM += length
	}
	return plan
}
