// Package geom provides the planar primitives the topology and routing
// layers are built on. Coordinates are metric (projected), never lat/lon.
package geom

import "math"

// Point is a location in a metric plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between a and b.
func Dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// PolylineLength returns the summed segment lengths of pts.
func PolylineLength(pts []Point) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += Dist(pts[i-1], pts[i])
	}
	return total
}

// Centroid returns the arithmetic mean of pts. A single point is its own
// centroid; an empty slice maps to the origin.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	return c
}

// ProjectOntoSegment projects p onto the segment from a to b. It returns the
// offset along the segment from a, the closest point on the segment and the
// distance from p to that point. Offsets are clamped to [0, |ab|].
func ProjectOntoSegment(p, a, b Point) (offset float64, closest Point, dist float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return 0, a, Dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	closest = Point{X: a.X + t*dx, Y: a.Y + t*dy}
	return t * math.Sqrt(lenSq), closest, Dist(p, closest)
}

// Interpolate returns the point at distance d from a along the segment
// toward b.
func Interpolate(a, b Point, d float64) Point {
	length := Dist(a, b)
	if length == 0 {
		return a
	}
	t := d / length
	return Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}
