// Package engine implements the point-to-district lookup pipeline over a
// built district store. A lookup runs validation, a bounding-box candidate
// probe, exact containment tests, and a nearest-centroid fallback, in that
// order, and always terminates in exactly one result variant.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/edgemaps/districtd/internal/cache"
	"github.com/edgemaps/districtd/internal/geometry"
	"github.com/edgemaps/districtd/internal/metrics"
	"github.com/edgemaps/districtd/internal/store"
)

const (
	// nearestK bounds the fallback scan. The first candidate in centroid
	// order that decodes wins, so k only matters when rows are corrupt.
	nearestK = 5

	defaultBatchMax       = 100
	defaultLookupPoolSize = 16
	defaultShutdownGrace  = 5 * time.Second
	defaultShutdownLimit  = 30 * time.Second
)

// ErrShuttingDown is returned by LookupBatch once Shutdown has started.
var ErrShuttingDown = errors.New("engine is shutting down")

type Config struct {
	Logger *slog.Logger
	Store  *store.Store
	Clock  clockwork.Clock

	// LRUCapacity sizes the decoded-geometry cache. Nil selects the
	// default; zero disables caching.
	LRUCapacity *int

	// BatchMax bounds the number of points accepted by LookupBatch.
	BatchMax int

	LookupPoolSize int
	ShutdownGrace  time.Duration
	ShutdownLimit  time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.LRUCapacity == nil {
		def := cache.DefaultCapacity
		c.LRUCapacity = &def
	}
	if *c.LRUCapacity < 0 {
		return fmt.Errorf("lru capacity must be non-negative, got %d", *c.LRUCapacity)
	}
	if c.BatchMax <= 0 {
		c.BatchMax = defaultBatchMax
	}
	if c.LookupPoolSize <= 0 {
		c.LookupPoolSize = defaultLookupPoolSize
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.ShutdownLimit <= c.ShutdownGrace {
		c.ShutdownLimit = defaultShutdownLimit
	}
	return nil
}

// Point is a WGS84 coordinate pair in the conventional lat-first order.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stats is the operational snapshot served by districtctl stats and the
// /v1/stats endpoint.
type Stats struct {
	TotalDistricts uint64  `json:"total_districts"`
	SchoolYear     string  `json:"school_year"`
	Tolerance      float64 `json:"tolerance"`
	LRUCapacity    int     `json:"lru_capacity"`
	LRUSize        int     `json:"lru_size"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
}

// Engine is the process-wide lookup service. It is safe for concurrent use;
// the store is read-only and the geometry cache is internally locked.
type Engine struct {
	log   *slog.Logger
	cfg   Config
	store *store.Store
	clock clockwork.Clock

	codec *geometry.Codec
	cache *cache.Geometry
	pool  pond.ResultPool[Result]

	closing  atomic.Bool
	inflight sync.WaitGroup
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := geometry.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to build geometry codec: %w", err)
	}
	geomCache, err := cache.NewGeometry(*cfg.LRUCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to build geometry cache: %w", err)
	}
	return &Engine{
		log:   cfg.Logger,
		cfg:   cfg,
		store: cfg.Store,
		clock: cfg.Clock,
		codec: codec,
		cache: geomCache,
		pool:  pond.NewResultPool[Result](cfg.LookupPoolSize),
	}, nil
}

// Lookup resolves a coordinate to a district. It never returns a Go error;
// failures are carried as the error result variant so batch callers get a
// uniform per-point shape.
func (e *Engine) Lookup(ctx context.Context, lat, lng float64) Result {
	if e.closing.Load() {
		return errResult(ErrKindShuttingDown, "")
	}
	e.inflight.Add(1)
	defer e.inflight.Done()
	// Recheck after registering so Shutdown cannot observe an empty group
	// while this lookup proceeds against a closing store.
	if e.closing.Load() {
		return errResult(ErrKindShuttingDown, "")
	}

	metrics.LookupsInflight.Inc()
	defer metrics.LookupsInflight.Dec()

	start := e.clock.Now()
	res := e.lookup(ctx, lat, lng)
	metrics.LookupDuration.Observe(e.clock.Since(start).Seconds())
	if res.Kind == KindError {
		metrics.Lookups.WithLabelValues(string(res.Err.Kind)).Inc()
	} else {
		metrics.Lookups.WithLabelValues(string(res.Kind)).Inc()
	}
	return res
}

func (e *Engine) lookup(ctx context.Context, lat, lng float64) Result {
	if verr := validateCoordinate(lat, lng); verr != nil {
		return Result{Kind: KindError, Err: verr}
	}
	if err := ctx.Err(); err != nil {
		return errResult(ErrKindCancelled, err.Error())
	}

	pt := orb.Point{lng, lat}

	candidates, err := e.store.CandidatesCovering(ctx, lng, lat)
	if err != nil {
		return e.storeFailure(ctx, "bbox probe", err)
	}
	metrics.CandidatesPerLookup.Observe(float64(len(candidates)))

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return errResult(ErrKindCancelled, err.Error())
		}
		row := &candidates[i]
		geom, err := e.decode(row)
		if err != nil {
			continue
		}
		if geometry.Contains(geom, pt) {
			return Result{Kind: KindExact, District: districtFromRow(row)}
		}
	}

	if err := ctx.Err(); err != nil {
		return errResult(ErrKindCancelled, err.Error())
	}

	nearest, err := e.store.NearestByCentroid(ctx, lng, lat, nearestK)
	if err != nil {
		return e.storeFailure(ctx, "nearest probe", err)
	}
	for i := range nearest {
		if err := ctx.Err(); err != nil {
			return errResult(ErrKindCancelled, err.Error())
		}
		row := &nearest[i]
		geom, err := e.decode(row)
		if err != nil {
			continue
		}
		distance := geometry.DistanceMeters(geom, pt)
		return Result{
			Kind:           KindApproximate,
			District:       districtFromRow(row),
			DistanceMeters: uint32(math.Round(distance)),
		}
	}

	return Result{Kind: KindNotFound}
}

// decode returns the candidate's geometry, consulting the LRU first. Decode
// failures are logged with the district id and skipped by the caller; a bad
// row never aborts the query.
func (e *Engine) decode(row *store.Row) (orb.Geometry, error) {
	if geom, ok := e.cache.Get(row.DistrictID); ok {
		metrics.CacheHits.Inc()
		return geom, nil
	}
	metrics.CacheMisses.Inc()
	geom, err := e.codec.Decode(row.Geometry)
	if err != nil {
		metrics.DecodeErrs.Inc()
		e.log.Error("failed to decode district geometry, skipping candidate",
			"district_id", row.DistrictID, "error", err)
		return nil, err
	}
	e.cache.Add(row.DistrictID, geom)
	return geom, nil
}

func (e *Engine) storeFailure(ctx context.Context, op string, err error) Result {
	if ctx.Err() != nil {
		return errResult(ErrKindCancelled, ctx.Err().Error())
	}
	e.log.Error("store query failed", "op", op, "error", err)
	return errResult(ErrKindInternal, "store query failed")
}

// LookupBatch resolves up to BatchMax points concurrently and returns the
// results in input order. Each point is independent; a per-point failure is
// carried in its slot, not returned as the batch error.
func (e *Engine) LookupBatch(ctx context.Context, points []Point) ([]Result, error) {
	if e.closing.Load() {
		return nil, ErrShuttingDown
	}
	if len(points) > e.cfg.BatchMax {
		return nil, fmt.Errorf("batch of %d points exceeds limit %d", len(points), e.cfg.BatchMax)
	}
	metrics.BatchSize.Observe(float64(len(points)))
	if len(points) == 0 {
		return []Result{}, nil
	}

	group := e.pool.NewGroupContext(ctx)
	for _, p := range points {
		group.SubmitErr(func() (Result, error) {
			return e.Lookup(ctx, p.Lat, p.Lng), nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("batch lookup failed: %w", err)
	}
	return results, nil
}

// CountByState passes through to the store's state-code index.
func (e *Engine) CountByState(ctx context.Context) (map[string]uint64, error) {
	return e.store.CountByState(ctx)
}

func (e *Engine) Stats() Stats {
	ss := e.store.Stats()
	s := Stats{
		TotalDistricts: ss.TotalDistricts,
		SchoolYear:     ss.SchoolYear,
		Tolerance:      ss.Tolerance,
		LRUCapacity:    e.cache.Capacity(),
		LRUSize:        e.cache.Len(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			s.MemoryRSSBytes = mem.RSS
		}
	}
	return s
}

// Shutdown stops accepting lookups, waits for in-flight queries within the
// grace window, and closes the store last. Idempotent; later calls return
// immediately.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	e.log.Info("engine shutting down", "grace", e.cfg.ShutdownGrace)

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-e.clock.After(e.cfg.ShutdownGrace):
		e.log.Warn("grace window elapsed with lookups still in flight")
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		case <-e.clock.After(e.cfg.ShutdownLimit - e.cfg.ShutdownGrace):
			err = fmt.Errorf("shutdown deadline exceeded after %s", e.cfg.ShutdownLimit)
		}
	}

	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close store: %w", cerr)
	}
	e.cache.Purge()
	e.log.Info("engine stopped")
	return err
}
