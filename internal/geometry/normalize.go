package geometry

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// DefaultTolerance is the simplification tolerance in degrees. At US
// latitudes 1e-4 degrees is roughly 8-11 meters of boundary deviation, which
// keeps the full SY2324 store compact without moving any realistic query
// point across a district line.
const DefaultTolerance = 1e-4

var ErrSelfIntersecting = errors.New("geometry has a self-intersecting ring")

// Normalized is the canonical persisted shape of one district geometry.
type Normalized struct {
	Geometry orb.Geometry // simplified Polygon or MultiPolygon
	Bound    orb.Bound    // exact envelope of the original geometry
	Centroid orb.Point    // area-weighted centroid of the original geometry
}

type NormalizerConfig struct {
	Logger    *slog.Logger
	Tolerance float64
}

func (c *NormalizerConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %v", c.Tolerance)
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	return nil
}

// Normalizer turns raw shapefile geometries into the canonical form the
// store persists: validity-checked, enveloped, centroided, and simplified.
type Normalizer struct {
	log *slog.Logger
	cfg NormalizerConfig

	rejected uint64
}

func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{log: cfg.Logger, cfg: cfg}, nil
}

func (n *Normalizer) Tolerance() float64 { return n.cfg.Tolerance }

// Rejected reports how many geometries were rejected as invalid.
func (n *Normalizer) Rejected() uint64 { return n.rejected }

// Normalize validates and canonicalizes a single geometry. Geometries with a
// self-intersecting ring are rejected with ErrSelfIntersecting; the caller
// skips the record and keeps building.
func (n *Normalizer) Normalize(id string, g orb.Geometry) (*Normalized, error) {
	if ring := firstSelfIntersectingRing(g); ring >= 0 {
		n.rejected++
		n.log.Warn("rejecting self-intersecting geometry", "district_id", id, "ring", ring)
		return nil, ErrSelfIntersecting
	}

	bound := g.Bound()
	centroid, area := planar.CentroidArea(g)
	if area == 0 {
		n.rejected++
		n.log.Warn("rejecting zero-area geometry", "district_id", id)
		return nil, errors.New("geometry has zero area")
	}
	// The centroid of a valid polygon can fall outside the shape (crescents)
	// but never outside its envelope. Guard anyway so the stored invariant
	// holds even for degenerate source rings.
	if !bound.Contains(centroid) {
		centroid = bound.Center()
	}

	simplified := n.simplify(g)

	return &Normalized{
		Geometry: simplified,
		Bound:    bound,
		Centroid: centroid,
	}, nil
}

// simplify applies Douglas-Peucker per ring. A ring that degenerates below 4
// points (triangle plus closing point) falls back to its original vertices;
// MultiPolygon parts that lose their outer ring entirely are dropped.
func (n *Normalizer) simplify(g orb.Geometry) orb.Geometry {
	s := simplify.DouglasPeucker(n.cfg.Tolerance)
	switch gt := g.(type) {
	case orb.Polygon:
		return n.simplifyPolygon(s, gt)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(gt))
		for _, p := range gt {
			sp := n.simplifyPolygon(s, p)
			if len(sp) == 0 {
				continue
			}
			out = append(out, sp)
		}
		if len(out) == 1 {
			return out[0]
		}
		return out
	default:
		return g
	}
}

func (n *Normalizer) simplifyPolygon(s *simplify.DouglasPeuckerSimplifier, p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for i, ring := range p {
		sr := s.Ring(ring.Clone())
		if len(sr) < 4 {
			sr = ring.Clone()
		}
		if len(sr) < 4 {
			// Degenerate in the source. The outer ring degenerating kills
			// the whole part; a degenerate hole is just dropped.
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, sr)
	}
	return out
}
