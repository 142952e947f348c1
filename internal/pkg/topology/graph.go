package topology

import (
	"fmt"

	"github.com/unplab/unp_core/internal/pkg/geom"
)

// Node is a graph vertex in the node arena, addressed by its index.
type Node struct {
	ID  int
	Pos geom.Point
}

// Edge connects two nodes. Removed edges stay in the arena so historic edge
// ids remain valid, but they are excluded from adjacency and queries.
type Edge struct {
	ID      int
	A, B    int
	Length  float64
	removed bool
}

// Halfedge is one directed half of an undirected edge, stored per node in the
// adjacency list.
type Halfedge struct {
	To     int
	Edge   int
	Length float64
}

// Graph is a weighted street topology. Nodes and edges live in arenas and are
// addressed by small integer indices; adjacency is a slice of halfedge lists
// keyed by node index.
type Graph struct {
	nodes []Node
	edges []Edge
	adj   [][]Halfedge
}

// NewGraph returns an empty topology graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a node at pos and returns its index.
func (g *Graph) AddNode(pos geom.Point) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{ID: id, Pos: pos})
	g.adj = append(g.adj, nil)
	return id
}

// AddEdge connects nodes a and b with the given length. Lengths must be
// strictly positive.
func (g *Graph) AddEdge(a, b int, length float64) (int, error) {
	if a < 0 || a >= len(g.nodes) || b < 0 || b >= len(g.nodes) {
		return 0, fmt.Errorf("edge endpoints (%d, %d) out of range", a, b)
	}
	if length <= 0 {
		return 0, fmt.Errorf("edge (%d, %d) has non-positive length %f", a, b, length)
	}
	id := len(g.edges)
	g.edges = append(g.edges, Edge{ID: id, A: a, B: b, Length: length})
	g.adj[a] = append(g.adj[a], Halfedge{To: b, Edge: id, Length: length})
	g.adj[b] = append(g.adj[b], Halfedge{To: a, Edge: id, Length: length})
	return id, nil
}

func (g *Graph) removeEdge(id int) {
	e := &g.edges[id]
	e.removed = true
	g.adj[e.A] = dropHalfedge(g.adj[e.A], id)
	g.adj[e.B] = dropHalfedge(g.adj[e.B], id)
}

func dropHalfedge(hs []Halfedge, edgeID int) []Halfedge {
	out := hs[:0]
	for _, h := range hs {
		if h.Edge != edgeID {
			out = append(out, h)
		}
	}
	return out
}

// Node returns the node at index i.
func (g *Graph) Node(i int) Node { return g.nodes[i] }

// Edge returns the edge with the given id, including removed edges.
func (g *Graph) Edge(id int) Edge { return g.edges[id] }

// NodeCount returns the number of nodes in the arena.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of live (non-removed) edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, e := range g.edges {
		if !e.removed {
			n++
		}
	}
	return n
}

// Neighbors returns the live halfedges leaving node i.
func (g *Graph) Neighbors(i int) []Halfedge { return g.adj[i] }

// SplitEdge inserts a new node on edge id at the given offset from endpoint A
// and replaces the edge with two edges whose lengths sum to the original
// length. The offset is clamped away from the endpoints so both halves keep a
// strictly positive length.
func (g *Graph) SplitEdge(id int, offset float64) (int, error) {
	if id < 0 || id >= len(g.edges) || g.edges[id].removed {
		return 0, fmt.Errorf("edge %d does not exist", id)
	}
	e := g.edges[id]
	minSplit := e.Length * 1e-9
	if minSplit == 0 {
		return 0, fmt.Errorf("edge %d has zero length", id)
	}
	if offset < minSplit {
		offset = minSplit
	}
	if offset > e.Length-minSplit {
		offset = e.Length - minSplit
	}

	pos := geom.Interpolate(g.nodes[e.A].Pos, g.nodes[e.B].Pos, offset)
	mid := g.AddNode(pos)

	g.removeEdge(id)
	if _, err := g.AddEdge(e.A, mid, offset); err != nil {
		return 0, err
	}
	if _, err := g.AddEdge(mid, e.B, e.Length-offset); err != nil {
		return 0, err
	}
	return mid, nil
}

// Components returns the connected components of the graph as slices of node
// indices. Disconnection is reported, never silently ignored.
func (g *Graph) Components() [][]int {
	seen := make([]bool, len(g.nodes))
	var comps [][]int
	for start := range g.nodes {
		if seen[start] {
			continue
		}
		comp := []int{start}
		seen[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, h := range g.adj[n] {
				if !seen[h.To] {
					seen[h.To] = true
					comp = append(comp, h.To)
					queue = append(queue, h.To)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}
