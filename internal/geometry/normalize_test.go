package geometry

import (
	"log/slog"
	"os"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func square(minLng, minLat, maxLng, maxLat float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}}
}

func TestDistrictd_Geometry_Normalize_BoundAndCentroid(t *testing.T) {
	t.Parallel()

	n, err := NewNormalizer(NormalizerConfig{Logger: testLogger()})
	require.NoError(t, err)

	p := square(-100, 39, -99, 40)
	got, err := n.Normalize("0600001", p)
	require.NoError(t, err)

	require.InDelta(t, -100, got.Bound.Min[0], 1e-12)
	require.InDelta(t, 39, got.Bound.Min[1], 1e-12)
	require.InDelta(t, -99, got.Bound.Max[0], 1e-12)
	require.InDelta(t, 40, got.Bound.Max[1], 1e-12)
	require.InDelta(t, -99.5, got.Centroid[0], 1e-9)
	require.InDelta(t, 39.5, got.Centroid[1], 1e-9)
	require.True(t, got.Bound.Contains(got.Centroid))
}

func TestDistrictd_Geometry_Normalize_SimplifyDropsCollinearVertices(t *testing.T) {
	t.Parallel()

	n, err := NewNormalizer(NormalizerConfig{Logger: testLogger(), Tolerance: 1e-4})
	require.NoError(t, err)

	// A square with redundant midpoints on every edge plus sub-tolerance
	// jitter on one of them.
	p := orb.Polygon{orb.Ring{
		{-100, 39}, {-99.5, 39.00001}, {-99, 39},
		{-99, 39.5}, {-99, 40},
		{-99.5, 40}, {-100, 40},
		{-100, 39.5}, {-100, 39},
	}}
	got, err := n.Normalize("0600002", p)
	require.NoError(t, err)

	sp, ok := got.Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, sp, 1)
	require.Equal(t, 5, len(sp[0]), "expected midpoints to simplify away")

	// The simplified envelope must stay within tolerance of the stored bbox.
	sb := got.Geometry.Bound()
	require.InDelta(t, got.Bound.Min[0], sb.Min[0], 1e-4)
	require.InDelta(t, got.Bound.Min[1], sb.Min[1], 1e-4)
	require.InDelta(t, got.Bound.Max[0], sb.Max[0], 1e-4)
	require.InDelta(t, got.Bound.Max[1], sb.Max[1], 1e-4)
}

func TestDistrictd_Geometry_Normalize_DegenerateRingFallsBack(t *testing.T) {
	t.Parallel()

	n, err := NewNormalizer(NormalizerConfig{Logger: testLogger(), Tolerance: 10})
	require.NoError(t, err)

	// Tolerance far larger than the shape: Douglas-Peucker would collapse
	// the ring, so the original vertices must survive.
	p := square(-100, 39, -99, 40)
	got, err := n.Normalize("0600003", p)
	require.NoError(t, err)

	sp, ok := got.Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Equal(t, p[0], sp[0])
}

func TestDistrictd_Geometry_Normalize_RejectsSelfIntersecting(t *testing.T) {
	t.Parallel()

	n, err := NewNormalizer(NormalizerConfig{Logger: testLogger()})
	require.NoError(t, err)

	// Bowtie: edges cross in the middle.
	bowtie := orb.Polygon{orb.Ring{
		{-100, 39}, {-99, 40}, {-99, 39}, {-100, 40}, {-100, 39},
	}}
	_, err = n.Normalize("0600004", bowtie)
	require.ErrorIs(t, err, ErrSelfIntersecting)
	require.EqualValues(t, 1, n.Rejected())
}

func TestDistrictd_Geometry_Normalize_MultiPolygonPartsIndependent(t *testing.T) {
	t.Parallel()

	n, err := NewNormalizer(NormalizerConfig{Logger: testLogger()})
	require.NoError(t, err)

	mp := orb.MultiPolygon{
		square(-100, 39, -99, 40),
		square(-98, 39, -97, 40),
	}
	got, err := n.Normalize("0600005", mp)
	require.NoError(t, err)

	smp, ok := got.Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, smp, 2)
	require.InDelta(t, -100, got.Bound.Min[0], 1e-12)
	require.InDelta(t, -97, got.Bound.Max[0], 1e-12)
}

func TestDistrictd_Geometry_Contains_EvenOddWithHole(t *testing.T) {
	t.Parallel()

	outer := orb.Ring{{-100, 39}, {-99, 39}, {-99, 40}, {-100, 40}, {-100, 39}}
	hole := orb.Ring{{-99.7, 39.3}, {-99.3, 39.3}, {-99.3, 39.7}, {-99.7, 39.7}, {-99.7, 39.3}}
	p := orb.Polygon{outer, hole}

	require.True(t, Contains(p, orb.Point{-99.9, 39.1}))
	require.False(t, Contains(p, orb.Point{-99.5, 39.5}), "point in hole")
	require.False(t, Contains(p, orb.Point{-98, 39.5}))
}

func TestDistrictd_Geometry_DistanceMeters(t *testing.T) {
	t.Parallel()

	p := square(-100, 39, -99, 40)

	require.Zero(t, DistanceMeters(p, orb.Point{-99.5, 39.5}))

	// One degree of latitude is ~111 km; a point half a degree south of the
	// bottom edge should be about 55.5 km away.
	d := DistanceMeters(p, orb.Point{-99.5, 38.5})
	require.InDelta(t, 55600, d, 1000)

	// Closest approach to a corner.
	d = DistanceMeters(p, orb.Point{-98.9, 38.9})
	require.Greater(t, d, 10000.0)
	require.Less(t, d, 20000.0)
}

func TestDistrictd_Geometry_Codec_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCodec()
	require.NoError(t, err)

	p := square(-100, 39, -99, 40)
	blob, err := c.Encode(p)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	got, err := c.Decode(blob)
	require.NoError(t, err)
	require.Equal(t, orb.Geometry(p), got)
}

func TestDistrictd_Geometry_Codec_RejectsBadInput(t *testing.T) {
	t.Parallel()

	c, err := NewCodec()
	require.NoError(t, err)

	_, err = c.Encode(orb.Point{-99, 39})
	require.Error(t, err)

	_, err = c.Decode(nil)
	require.Error(t, err)

	_, err = c.Decode([]byte("not a zstd frame"))
	require.Error(t, err)
}
