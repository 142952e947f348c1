package topology

import (
	"fmt"
	"sort"

	"github.com/unplab/unp_core/internal/pkg/geom"
)

// ServicePoint is an external point (building or plant) to be attached to
// the street graph. Owner ids must be unique within one projection pass.
type ServicePoint struct {
	Owner string
	Pos   geom.Point
}

// VirtualNode records where a service point was attached. Node is the graph
// vertex created by splitting the owning edge at Offset from its A endpoint.
type VirtualNode struct {
	Owner    string
	Node     int
	Edge     int     // owning edge id at time of insertion
	Offset   float64 // distance from the owning edge's A endpoint
	Distance float64 // perpendicular distance from the service point
}

// ProjectionError reports a service point too far from any street edge.
type ProjectionError struct {
	Owner    string
	Distance float64
	Max      float64
}

func (e ProjectionError) Error() string {
	return fmt.Sprintf("projection: point %q is %.1f m from the nearest street edge (max %.1f m)",
		e.Owner, e.Distance, e.Max)
}

// ProjectServicePoints inserts one virtual node per service point by
// splitting the nearest live edge at the projection offset. Points are
// processed in owner-id order so the resulting topology is deterministic for
// a given point set. Every owner receives a distinct node, even when two
// points project to (nearly) the same location.
func ProjectServicePoints(g *Graph, points []ServicePoint, maxDistM float64) ([]VirtualNode, error) {
	ordered := make([]ServicePoint, len(points))
	copy(ordered, points)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Owner < ordered[j].Owner })

	out := make([]VirtualNode, 0, len(ordered))
	for _, sp := range ordered {
		vn, err := projectOne(g, sp, maxDistM)
		if err != nil {
			return nil, err
		}
		out = append(out, vn)
	}
	return out, nil
}

func projectOne(g *Graph, sp ServicePoint, maxDistM float64) (VirtualNode, error) {
	bestEdge := -1
	bestDist := 0.0
	bestOffset := 0.0
	for id := 0; id < len(g.edges); id++ {
		e := g.edges[id]
		if e.removed {
			continue
		}
		offset, _, dist := geom.ProjectOntoSegment(sp.Pos, g.Node(e.A).Pos, g.Node(e.B).Pos)
		if bestEdge < 0 || dist < bestDist {
			bestEdge = id
			bestDist = dist
			bestOffset = offset
		}
	}
	if bestEdge < 0 {
		return VirtualNode{}, ProjectionError{Owner: sp.Owner, Distance: bestDist, Max: maxDistM}
	}
	if maxDistM > 0 && bestDist > maxDistM {
		return VirtualNode{}, ProjectionError{Owner: sp.Owner, Distance: bestDist, Max: maxDistM}
	}

	node, err := g.SplitEdge(bestEdge, bestOffset)
	if err != nil {
		return VirtualNode{}, ProjectionError{Owner: sp.Owner, Distance: bestDist, Max: maxDistM}
	}
	return VirtualNode{
		Owner:    sp.Owner,
		Node:     node,
		Edge:     bestEdge,
		Offset:   bestOffset,
		Distance: bestDist,
	}, nil
}
