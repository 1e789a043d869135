package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Contains reports whether the point lies inside the polygon or multipolygon
// under the even-odd rule on planar WGS84 coordinates.
func Contains(g orb.Geometry, pt orb.Point) bool {
	switch gt := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(gt, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(gt, pt)
	default:
		return false
	}
}

// DistanceMeters returns the distance from the point to the nearest boundary
// of the geometry, in meters. A point inside the geometry has distance 0.
// The nearest boundary point is found by planar projection onto each segment
// and then measured with the spherical distance, which is accurate to well
// under a percent at district scale.
func DistanceMeters(g orb.Geometry, pt orb.Point) float64 {
	if Contains(g, pt) {
		return 0
	}
	best := math.Inf(1)
	forEachRing(g, func(r orb.Ring) {
		for i := 0; i+1 < len(r); i++ {
			cp := closestOnSegment(r[i], r[i+1], pt)
			if d := geo.Distance(pt, cp); d < best {
				best = d
			}
		}
	})
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

func forEachRing(g orb.Geometry, fn func(orb.Ring)) {
	switch gt := g.(type) {
	case orb.Polygon:
		for _, r := range gt {
			fn(r)
		}
	case orb.MultiPolygon:
		for _, p := range gt {
			for _, r := range p {
				fn(r)
			}
		}
	}
}

func closestOnSegment(a, b, p orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	den := dx*dx + dy*dy
	if den == 0 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}
