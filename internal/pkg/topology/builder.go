package topology

import (
	"fmt"
	"math"

	"github.com/unplab/unp_core/internal/pkg/geom"
)

// StreetSegment is an ordered polyline of street geometry. Immutable once
// loaded.
type StreetSegment struct {
	ID     string       `json:"id"`
	Points []geom.Point `json:"points"`
}

// Options controls graph construction.
type Options struct {
	// MergeToleranceM collapses coordinates within this radius into a single
	// node, so floating-point noise at intersections does not split the
	// network into spurious components.
	MergeToleranceM float64
	// MaxEdgeLengthM, when > 0, splits longer edges into evenly spaced
	// pieces with intermediate nodes. Resolution only, no topology change.
	MaxEdgeLengthM float64
}

// GraphConstructionError reports unusable street input.
type GraphConstructionError struct {
	Reason string
}

func (e GraphConstructionError) Error() string {
	return "graph construction: " + e.Reason
}

// FromSegments builds a topology graph from raw street geometry.
func FromSegments(segments []StreetSegment, opt Options) (*Graph, error) {
	if len(segments) == 0 {
		return nil, GraphConstructionError{Reason: "no street segments supplied"}
	}
	if opt.MergeToleranceM < 0 {
		return nil, GraphConstructionError{Reason: "negative merge tolerance"}
	}

	g := NewGraph()
	for _, seg := range segments {
		if len(seg.Points) < 2 || geom.PolylineLength(seg.Points) == 0 {
			return nil, GraphConstructionError{
				Reason: fmt.Sprintf("segment %q is degenerate (zero length)", seg.ID),
			}
		}
		prev := -1
		for _, p := range seg.Points {
			n := mergeOrAdd(g, p, opt.MergeToleranceM)
			if prev >= 0 && n != prev {
				length := geom.Dist(g.Node(prev).Pos, g.Node(n).Pos)
				if length > 0 {
					if _, err := g.AddEdge(prev, n, length); err != nil {
						return nil, GraphConstructionError{Reason: err.Error()}
					}
				}
			}
			prev = n
		}
	}

	if opt.MaxEdgeLengthM > 0 {
		splitLongEdges(g, opt.MaxEdgeLengthM)
	}
	return g, nil
}

// mergeOrAdd returns the index of an existing node within tolerance of p, or
// adds a new node. Linear scan; street-scale inputs stay small.
func mergeOrAdd(g *Graph, p geom.Point, tol float64) int {
	for i := 0; i < g.NodeCount(); i++ {
		if geom.Dist(g.Node(i).Pos, p) <= tol {
			return i
		}
	}
	return g.AddNode(p)
}

func splitLongEdges(g *Graph, maxLen float64) {
	// snapshot ids first, splitting appends new edges
	var long []int
	for id := 0; id < len(g.edges); id++ {
		if !g.edges[id].removed && g.edges[id].Length > maxLen {
			long = append(long, id)
		}
	}
	for _, id := range long {
		splitEvenly(g, id, maxLen)
	}
}

func splitEvenly(g *Graph, id int, maxLen float64) {
	e := g.Edge(id)
	pieces := int(math.Ceil(e.Length / maxLen))
	if pieces < 2 {
		return
	}
	step := e.Length / float64(pieces)
	// each split leaves the remainder as the second half; keep splitting it
	remaining := id
	for i := 1; i < pieces; i++ {
		mid, err := g.SplitEdge(remaining, step)
		if err != nil {
			return
		}
		// the half continuing toward the original B endpoint was appended last
		remaining = len(g.edges) - 1
		_ = mid
	}
}
