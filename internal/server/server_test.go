package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/edgemaps/districtd/internal/engine"
	"github.com/edgemaps/districtd/internal/geometry"
	"github.com/edgemaps/districtd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func fixtureEngine(t *testing.T) *engine.Engine {
	t.Helper()

	codec, err := geometry.NewCodec()
	require.NoError(t, err)
	square := func(minLng, minLat, maxLng, maxLat float64) []byte {
		blob, err := codec.Encode(orb.Polygon{orb.Ring{
			{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
		}})
		require.NoError(t, err)
		return blob
	}

	path := filepath.Join(t.TempDir(), "districts.db")
	b, err := store.NewBuilder(store.BuilderConfig{
		Logger:     testLogger(),
		Path:       path,
		SchoolYear: "2023-2024",
		Tolerance:  geometry.DefaultTolerance,
	})
	require.NoError(t, err)
	require.NoError(t, b.Add(context.Background(), store.Row{
		DistrictID: "2502790", Name: "Boston Public Schools", StateCode: "25",
		GradeLowest: "PK", GradeHighest: "12", LandAreaM2: 1e8, SchoolYear: "2023-2024",
		MinLng: -71.2, MinLat: 42.2, MaxLng: -70.9, MaxLat: 42.5,
		CentroidLng: -71.05, CentroidLat: 42.35,
		Geometry: square(-71.2, 42.2, -70.9, 42.5),
	}))
	require.NoError(t, b.Commit(context.Background()))

	s, err := store.Open(store.Config{Logger: testLogger(), Path: path})
	require.NoError(t, err)

	e, err := engine.New(engine.Config{Logger: testLogger(), Store: s, BatchMax: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := New(testLogger(), Config{Engine: fixtureEngine(t)})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.handler.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestDistrictd_Server_LookupExact(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var res engine.Result
	code := getJSON(t, ts.URL+"/v1/lookup?lat=42.3601&lng=-71.0589", &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, engine.KindExact, res.Kind)
	require.Equal(t, "2502790", res.District.DistrictID)
}

func TestDistrictd_Server_LookupCached(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var first, second engine.Result
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/lookup?lat=42.3601&lng=-71.0589", &first))
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/lookup?lat=42.3601&lng=-71.0589", &second))
	require.Equal(t, first, second)
}

func TestDistrictd_Server_LookupBadInput(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var errResp ErrorResponse
	code := getJSON(t, ts.URL+"/v1/lookup?lng=-71.0589", &errResp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, http.StatusBadRequest, errResp.Code)

	var res engine.Result
	code = getJSON(t, ts.URL+"/v1/lookup?lat=51.5074&lng=-0.1278", &res)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, engine.KindError, res.Kind)
	require.Equal(t, engine.ErrKindCoordinateOutOfRange, res.Err.Kind)
}

func TestDistrictd_Server_Batch(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	body, err := json.Marshal(BatchRequest{Points: []engine.Point{
		{Lat: 42.3601, Lng: -71.0589},
		{Lat: 0, Lng: 0},
	}})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/lookup/batch", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var batch BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	require.Len(t, batch.Results, 2)
	require.Equal(t, engine.KindExact, batch.Results[0].Kind)
	require.Equal(t, engine.KindError, batch.Results[1].Kind)
}

func TestDistrictd_Server_BatchOverLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	body, err := json.Marshal(BatchRequest{Points: make([]engine.Point, 4)})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/lookup/batch", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDistrictd_Server_BatchBadBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/lookup/batch", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDistrictd_Server_Stats(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var stats StatsResponse
	code := getJSON(t, ts.URL+"/v1/stats", &stats)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, stats.TotalDistricts)
	require.Equal(t, "2023-2024", stats.SchoolYear)
	require.EqualValues(t, 1, stats.DistrictsByState["25"])
}

func TestDistrictd_Server_Healthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}
