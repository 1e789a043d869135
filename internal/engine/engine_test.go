package engine

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/edgemaps/districtd/internal/cache"
	"github.com/edgemaps/districtd/internal/geometry"
	"github.com/edgemaps/districtd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func intPtr(v int) *int { return &v }

func encodeSquare(t *testing.T, minLng, minLat, maxLng, maxLat float64) []byte {
	t.Helper()
	c, err := geometry.NewCodec()
	require.NoError(t, err)
	blob, err := c.Encode(orb.Polygon{orb.Ring{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}})
	require.NoError(t, err)
	return blob
}

func squareRow(t *testing.T, id, name, state string, minLng, minLat, maxLng, maxLat float64) store.Row {
	t.Helper()
	return store.Row{
		DistrictID:   id,
		Name:         name,
		StateCode:    state,
		GradeLowest:  "PK",
		GradeHighest: "12",
		LandAreaM2:   1e8,
		SchoolYear:   "2023-2024",
		MinLng:       minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat,
		CentroidLng: (minLng + maxLng) / 2, CentroidLat: (minLat + maxLat) / 2,
		Geometry: encodeSquare(t, minLng, minLat, maxLng, maxLat),
	}
}

func fixtureRows(t *testing.T) []store.Row {
	return []store.Row{
		squareRow(t, "2502790", "Boston Public Schools", "25", -71.2, 42.2, -70.9, 42.5),
		squareRow(t, "2630960", "Saugatuck Public Schools", "26", -86.3, 42.6, -86.1, 42.75),
		squareRow(t, "0634320", "Los Angeles Unified School District", "06", -118.7, 33.7, -118.1, 34.3),
	}
}

func newTestEngine(t *testing.T, rows []store.Row, mutate func(*Config)) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "districts.db")
	b, err := store.NewBuilder(store.BuilderConfig{
		Logger:     testLogger(),
		Path:       path,
		SchoolYear: "2023-2024",
		Tolerance:  geometry.DefaultTolerance,
	})
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, b.Add(context.Background(), r))
	}
	require.NoError(t, b.Commit(context.Background()))

	s, err := store.Open(store.Config{Logger: testLogger(), Path: path})
	require.NoError(t, err)

	cfg := Config{Logger: testLogger(), Store: s}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func TestDistrictd_Engine_ExactHit(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	res := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindExact, res.Kind)
	require.NotNil(t, res.District)
	require.Equal(t, "2502790", res.District.DistrictID)
	require.Equal(t, "25", res.District.StateCode)
	require.Contains(t, res.District.GradeRange, "12")
	require.Zero(t, res.DistanceMeters)
}

func TestDistrictd_Engine_InsideIsNeverApproximate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	// Points strictly inside fixture districts must always resolve exact.
	inside := []struct {
		lat, lng float64
		id       string
	}{
		{42.3601, -71.0589, "2502790"},
		{42.66, -86.2, "2630960"},
		{34.0522, -118.2437, "0634320"},
	}
	for _, p := range inside {
		res := e.Lookup(context.Background(), p.lat, p.lng)
		require.Equal(t, KindExact, res.Kind)
		require.Equal(t, p.id, res.District.DistrictID)
	}
}

func TestDistrictd_Engine_ApproximateFallback(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	// A point in Lake Michigan is outside every boundary; Saugatuck has the
	// nearest centroid.
	res := e.Lookup(context.Background(), 42.7, -86.5)
	require.Equal(t, KindApproximate, res.Kind)
	require.Equal(t, "2630960", res.District.DistrictID)
	require.Greater(t, res.DistanceMeters, uint32(0))
}

func TestDistrictd_Engine_EmptyStoreNotFound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil, nil)

	res := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindNotFound, res.Kind)
	require.Nil(t, res.District)
}

func TestDistrictd_Engine_CoordinateValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	cases := []struct {
		name     string
		lat, lng float64
		kind     ErrorKind
	}{
		{"nan lat", math.NaN(), -71.0, ErrKindCoordinateNotFinite},
		{"inf lng", 42.0, math.Inf(1), ErrKindCoordinateNotFinite},
		{"gulf of guinea", 0, 0, ErrKindCoordinateOutOfRange},
		{"london", 51.5074, -0.1278, ErrKindCoordinateOutOfRange},
		{"south of range", 17.9, -71.0, ErrKindCoordinateOutOfRange},
	}
	for _, tc := range cases {
		res := e.Lookup(context.Background(), tc.lat, tc.lng)
		require.Equal(t, KindError, res.Kind, tc.name)
		require.NotNil(t, res.Err, tc.name)
		require.Equal(t, tc.kind, res.Err.Kind, tc.name)
	}

	// Range boundaries are inclusive.
	res := e.Lookup(context.Background(), 18, -65)
	require.NotEqual(t, KindError, res.Kind)
}

func TestDistrictd_Engine_Deterministic(t *testing.T) {
	t.Parallel()

	// Capacity 1 forces cache churn under concurrency; results must not
	// depend on cache state.
	e := newTestEngine(t, fixtureRows(t), func(c *Config) { c.LRUCapacity = intPtr(1) })

	want := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindExact, want.Kind)

	var wg sync.WaitGroup
	results := make([]Result, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = e.Lookup(context.Background(), 42.3601, -71.0589)
			} else {
				// Interleave other districts to thrash the cache.
				e.Lookup(context.Background(), 34.0522, -118.2437)
				results[i] = e.Lookup(context.Background(), 42.3601, -71.0589)
			}
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.Equal(t, want, results[i])
	}
}

func TestDistrictd_Engine_CacheDisabledByZeroCapacity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), func(c *Config) { c.LRUCapacity = intPtr(0) })

	res := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindExact, res.Kind)
	require.Zero(t, e.Stats().LRUCapacity)
	require.Zero(t, e.Stats().LRUSize)
}

func TestDistrictd_Engine_DefaultCacheCapacityWhenUnset(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)
	require.Equal(t, cache.DefaultCapacity, e.Stats().LRUCapacity)
}

func TestDistrictd_Engine_DecodeErrorSkipsCandidate(t *testing.T) {
	t.Parallel()

	rows := fixtureRows(t)
	// A corrupt row whose bbox also covers the Boston probe point. Inserted
	// first so the containment scan hits it before the good row.
	bad := squareRow(t, "9999999", "Corrupt District", "25", -71.3, 42.1, -70.8, 42.6)
	bad.Geometry = []byte{0xde, 0xad, 0xbe, 0xef}
	rows = append([]store.Row{bad}, rows...)

	e := newTestEngine(t, rows, nil)

	res := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindExact, res.Kind)
	require.Equal(t, "2502790", res.District.DistrictID)
}

func TestDistrictd_Engine_Cancellation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Lookup(ctx, 42.3601, -71.0589)
	require.Equal(t, KindError, res.Kind)
	require.Equal(t, ErrKindCancelled, res.Err.Kind)
}

func TestDistrictd_Engine_BatchMatchesSingle(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	points := []Point{
		{Lat: 42.3601, Lng: -71.0589},
		{Lat: 42.7, Lng: -86.5},
		{Lat: 0, Lng: 0},
		{Lat: 34.0522, Lng: -118.2437},
	}
	batch, err := e.LookupBatch(context.Background(), points)
	require.NoError(t, err)
	require.Len(t, batch, len(points))

	for i, p := range points {
		require.Equal(t, e.Lookup(context.Background(), p.Lat, p.Lng), batch[i], "point %d", i)
	}
}

func TestDistrictd_Engine_BatchLimits(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), func(c *Config) { c.BatchMax = 2 })

	_, err := e.LookupBatch(context.Background(), make([]Point, 3))
	require.Error(t, err)

	empty, err := e.LookupBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestDistrictd_Engine_Stats(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	// Warm the cache with one decode.
	e.Lookup(context.Background(), 42.3601, -71.0589)

	s := e.Stats()
	require.EqualValues(t, 3, s.TotalDistricts)
	require.Equal(t, "2023-2024", s.SchoolYear)
	require.InDelta(t, geometry.DefaultTolerance, s.Tolerance, 1e-12)
	require.Positive(t, s.LRUCapacity)
	require.Positive(t, s.LRUSize)
	require.Positive(t, s.MemoryRSSBytes)
}

func TestDistrictd_Engine_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, fixtureRows(t), nil)

	require.NoError(t, e.Shutdown(context.Background()))
	require.NoError(t, e.Shutdown(context.Background()))

	res := e.Lookup(context.Background(), 42.3601, -71.0589)
	require.Equal(t, KindError, res.Kind)
	require.Equal(t, ErrKindShuttingDown, res.Err.Kind)

	_, err := e.LookupBatch(context.Background(), []Point{{Lat: 42.3601, Lng: -71.0589}})
	require.ErrorIs(t, err, ErrShuttingDown)
}
