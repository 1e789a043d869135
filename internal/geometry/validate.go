package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// firstSelfIntersectingRing returns the index (in ring visit order) of the
// first ring whose segments properly cross, or -1 if none do. Shared
// endpoints between consecutive segments are not intersections.
func firstSelfIntersectingRing(g orb.Geometry) int {
	idx := 0
	switch gt := g.(type) {
	case orb.Polygon:
		for _, r := range gt {
			if ringSelfIntersects(r) {
				return idx
			}
			idx++
		}
	case orb.MultiPolygon:
		for _, p := range gt {
			for _, r := range p {
				if ringSelfIntersects(r) {
					return idx
				}
				idx++
			}
		}
	}
	return -1
}

type segment struct {
	a, b       orb.Point
	minX, maxX float64
	next, prev int // indices of the adjacent segments on the ring
}

// ringSelfIntersects runs a sweep over the ring's segments sorted by min-x.
// Adjacent segments share an endpoint by construction and are skipped; any
// other pair that crosses or overlaps makes the ring invalid.
func ringSelfIntersects(r orb.Ring) bool {
	n := len(r)
	if n < 4 {
		return false
	}
	segs := make([]segment, 0, n-1)
	for i := 0; i+1 < n; i++ {
		a, b := r[i], r[i+1]
		segs = append(segs, segment{
			a: a, b: b,
			minX: math.Min(a[0], b[0]),
			maxX: math.Max(a[0], b[0]),
		})
	}
	m := len(segs)
	for i := range segs {
		segs[i].next = (i + 1) % m
		segs[i].prev = (i - 1 + m) % m
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return segs[order[i]].minX < segs[order[j]].minX
	})

	for i := 0; i < m; i++ {
		si := order[i]
		for j := i + 1; j < m; j++ {
			sj := order[j]
			if segs[sj].minX > segs[si].maxX {
				break
			}
			if sj == segs[si].next || sj == segs[si].prev {
				continue
			}
			if segmentsCross(segs[si].a, segs[si].b, segs[sj].a, segs[sj].b) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// Collinear overlap counts as an intersection.
	if d1 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
