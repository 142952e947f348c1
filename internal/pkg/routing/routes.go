package routing

import (
	"fmt"
	"sort"

	"github.com/unplab/unp_core/internal/pkg/topology"
)

// Route is the shortest path from the plant virtual node to one building
// virtual node. Read-only artifact of one routing pass.
type Route struct {
	Owner   string
	Nodes   []int
	Edges   []int
	LengthM float64
}

// Unreached marks a building the plant cannot reach over the street graph.
type Unreached struct {
	Owner  string
	Reason string
}

// Plan aggregates one routing pass. TotalPathLengthM sums per-building path
// lengths and double-counts shared trunk edges; UnionLengthM counts each
// physical edge once, which is what pipe or cable material actually costs.
// The two are deliberately kept separate.
type Plan struct {
	Routes           []Route
	Unreached        []Unreached
	TotalPathLengthM float64
	UnionLengthM     float64
}

// NoRouteError reports that no building at all is reachable from the plant.
type NoRouteError struct {
	Plant string
}

func (e NoRouteError) Error() string {
	return fmt.Sprintf("routing: no building reachable from plant %q", e.Plant)
}

// PlanRoutes runs one single-source shortest-path pass from the plant node
// and collects the route to every building node. Unreachable buildings are
// reported individually and excluded from the aggregates; only a plan with
// zero reachable buildings is an error.
func PlanRoutes(g *topology.Graph, plant topology.VirtualNode, buildings []topology.VirtualNode) (Plan, error) {
	tree := dijkstra(g, plant.Node)

	ordered := make([]topology.VirtualNode, len(buildings))
	copy(ordered, buildings)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Owner < ordered[j].Owner })

	plan := Plan{}
	union := make(map[int]struct{})
	for _, b := range ordered {
		if !tree.reachable(b.Node) {
			plan.Unreached = append(plan.Unreached, Unreached{
				Owner:  b.Owner,
				Reason: "disconnected from plant over the street graph",
			})
			continue
		}
		r := Route{
			Owner:   b.Owner,
			Nodes:   tree.pathTo(b.Node),
			Edges:   tree.edgesTo(b.Node),
			LengthM: tree.dist[b.Node],
		}
		plan.Routes = append(plan.Routes, r)
		plan.TotalPathLengthM += r.LengthM
		for _, e := range r.Edges {
			union[e] = struct{}{}
		}
	}

	if len(plan.Routes) == 0 {
		return Plan{}, NoRouteError{Plant: plant.Owner}
	}
	for e := range union {
		plan.UnionLengthM += g.Edge(e).Length
	}
	return plan, nil
}
