package routing

import (
	"container/heap"
	"math"

	"github.com/unplab/unp_core/internal/pkg/topology"
)

// tieEps is the length tolerance under which two paths count as equal and
// the deterministic tie-break applies.
const tieEps = 1e-9

// shortestTree holds the single-source shortest path tree rooted at the
// plant node. One Dijkstra pass serves every building: O((V+E) log V) total
// instead of one search per building.
type shortestTree struct {
	dist     []float64
	hops     []int
	prevNode []int
	prevEdge []int
}

func (t shortestTree) reachable(n int) bool {
	return !math.IsInf(t.dist[n], 1)
}

// pathTo reconstructs the node sequence from the source to n.
func (t shortestTree) pathTo(n int) []int {
	var rev []int
	for cur := n; cur != -1; cur = t.prevNode[cur] {
		rev = append(rev, cur)
	}
	path := make([]int, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

// edgesTo reconstructs the edge ids along the path from the source to n.
func (t shortestTree) edgesTo(n int) []int {
	var rev []int
	for cur := n; t.prevNode[cur] != -1; cur = t.prevNode[cur] {
		rev = append(rev, t.prevEdge[cur])
	}
	edges := make([]int, len(rev))
	for i := range rev {
		edges[i] = rev[len(rev)-1-i]
	}
	return edges
}

func dijkstra(g *topology.Graph, source int) shortestTree {
	n := g.NodeCount()
	t := shortestTree{
		dist:     make([]float64, n),
		hops:     make([]int, n),
		prevNode: make([]int, n),
		prevEdge: make([]int, n),
	}
	for i := 0; i < n; i++ {
		t.dist[i] = math.Inf(1)
		t.prevNode[i] = -1
		t.prevEdge[i] = -1
	}
	t.dist[source] = 0

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, nodeItem{node: source, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(nodeItem)
		u := item.node
		if item.dist > t.dist[u]+tieEps {
			continue // stale entry
		}
		for _, h := range g.Neighbors(u) {
			v := h.To
			nd := t.dist[u] + h.Length
			if better(&t, u, v, nd, h.Edge) {
				t.dist[v] = nd
				t.hops[v] = t.hops[u] + 1
				t.prevNode[v] = u
				t.prevEdge[v] = h.Edge
				heap.Push(pq, nodeItem{node: v, dist: nd})
			}
		}
	}
	return t
}

// better reports whether reaching v through u at distance nd improves on the
// current tree. Equal-length paths are broken by hop count, then by the
// lexicographically smaller node-id sequence, so repeated runs over the same
// topology always select the same routes.
func better(t *shortestTree, u, v int, nd float64, edge int) bool {
	cur := t.dist[v]
	if nd < cur-tieEps {
		return true
	}
	if nd > cur+tieEps {
		return false
	}
	candHops := t.hops[u] + 1
	if candHops != t.hops[v] {
		return candHops < t.hops[v]
	}
	cand := append(t.pathTo(u), v)
	return lessIntSeq(cand, t.pathTo(v))
}

func lessIntSeq(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

type nodeItem struct {
	node int
	dist float64
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeItem)) }

func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
