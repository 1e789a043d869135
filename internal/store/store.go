package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Stats is the store-level slice of the engine stats surface.
type Stats struct {
	TotalDistricts uint64
	SchoolYear     string
	Tolerance      float64
}

type Config struct {
	Logger *slog.Logger
	Path   string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Path == "" {
		return errors.New("store path is required")
	}
	return nil
}

// Store is the read-only handle over a built district store. All access
// paths are prepared at open time and safe for concurrent use.
type Store struct {
	log *slog.Logger
	cfg Config
	db  *sql.DB

	stats       Stats
	geometryCRC uint32

	candidates *sql.Stmt
	nearest    *sql.Stmt
	byState    *sql.Stmt
	byID       *sql.Stmt
}

// Open opens the store in shared read-only mode and validates the metadata
// header. It fails with ErrStoreMissing, ErrStoreCorrupt or
// ErrVersionMismatch; the engine refuses to serve on any of them.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, cfg.Path)
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+cfg.Path+"?mode=ro&_query_only=1")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	s := &Store{log: cfg.Logger, cfg: cfg, db: db}
	if err := s.readMeta(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	s.log.Info("district store opened",
		"path", cfg.Path,
		"districts", s.stats.TotalDistricts,
		"school_year", s.stats.SchoolYear,
		"tolerance", s.stats.Tolerance,
	)
	return s, nil
}

func (s *Store) readMeta() error {
	meta := make(map[string]string)
	rows, err := s.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return fmt.Errorf("%w: missing meta table: %v", ErrStoreCorrupt, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	version, err := strconv.Atoi(meta[metaKeyBuilderVersion])
	if err != nil {
		return fmt.Errorf("%w: bad builder version %q", ErrStoreCorrupt, meta[metaKeyBuilderVersion])
	}
	if version > BuilderVersion {
		return fmt.Errorf("%w: store version %d, supported %d", ErrVersionMismatch, version, BuilderVersion)
	}

	count, err := strconv.ParseUint(meta[metaKeyDistrictCount], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad district count %q", ErrStoreCorrupt, meta[metaKeyDistrictCount])
	}
	tolerance, err := strconv.ParseFloat(meta[metaKeyTolerance], 64)
	if err != nil {
		return fmt.Errorf("%w: bad tolerance %q", ErrStoreCorrupt, meta[metaKeyTolerance])
	}
	crc, err := strconv.ParseUint(meta[metaKeyGeometryCRC], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: bad geometry crc %q", ErrStoreCorrupt, meta[metaKeyGeometryCRC])
	}

	s.stats = Stats{
		TotalDistricts: count,
		SchoolYear:     meta[metaKeySchoolYear],
		Tolerance:      tolerance,
	}
	s.geometryCRC = uint32(crc)
	return nil
}

func (s *Store) prepare() error {
	var err error
	s.candidates, err = s.db.Prepare(`SELECT ` + rowColumns + ` FROM districts
		WHERE min_lng <= ?1 AND max_lng >= ?1 AND min_lat <= ?2 AND max_lat >= ?2`)
	if err != nil {
		return err
	}
	s.nearest, err = s.db.Prepare(`SELECT ` + rowColumns + ` FROM districts
		ORDER BY (centroid_lng - ?1) * (centroid_lng - ?1) + (centroid_lat - ?2) * (centroid_lat - ?2), district_id
		LIMIT ?3`)
	if err != nil {
		return err
	}
	s.byState, err = s.db.Prepare(`SELECT state_code, COUNT(*) FROM districts GROUP BY state_code ORDER BY state_code`)
	if err != nil {
		return err
	}
	s.byID, err = s.db.Prepare(`SELECT ` + rowColumns + ` FROM districts WHERE district_id = ?`)
	return err
}

// CandidatesCovering probes the bbox index and returns every district whose
// bounding box covers the point.
func (s *Store) CandidatesCovering(ctx context.Context, lng, lat float64) ([]Row, error) {
	rows, err := s.candidates.QueryContext(ctx, lng, lat)
	if err != nil {
		return nil, fmt.Errorf("bbox probe failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// NearestByCentroid returns up to k districts ordered by planar squared
// distance of their centroid to the point, with equal distances broken by
// district id.
func (s *Store) NearestByCentroid(ctx context.Context, lng, lat float64, k int) ([]Row, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := s.nearest.QueryContext(ctx, lng, lat, k)
	if err != nil {
		return nil, fmt.Errorf("nearest probe failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ByID fetches a single district row; sql.ErrNoRows when absent.
func (s *Store) ByID(ctx context.Context, id string) (*Row, error) {
	rows, err := s.byID.QueryContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return &out[0], nil
}

// CountByState returns district counts keyed by state FIPS code, served
// from the state-code index.
func (s *Store) CountByState(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.byState.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("state count failed: %w", err)
	}
	defer rows.Close()
	out := make(map[string]uint64)
	for rows.Next() {
		var code string
		var n uint64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		out[code] = n
	}
	return out, rows.Err()
}

func (s *Store) Stats() Stats { return s.stats }

// Verify recomputes the geometry CRC over all rows in insertion order and
// compares it against the header. Full-scan; used by districtctl verify and
// the round-trip tests, not on the serving path.
func (s *Store) Verify(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT district_id, geometry FROM districts ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	defer rows.Close()

	var crc uint32
	var count uint64
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		crc = crc32.Update(crc, crc32.IEEETable, []byte(id))
		crc = crc32.Update(crc, crc32.IEEETable, blob)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if count != s.stats.TotalDistricts {
		return fmt.Errorf("%w: header says %d districts, found %d", ErrStoreCorrupt, s.stats.TotalDistricts, count)
	}
	if crc != s.geometryCRC {
		return fmt.Errorf("%w: geometry crc mismatch", ErrStoreCorrupt)
	}
	return nil
}

func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.candidates, s.nearest, s.byState, s.byID} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.DistrictID, &r.Name, &r.StateCode, &r.GradeLowest, &r.GradeHighest,
			&r.LandAreaM2, &r.WaterAreaM2, &r.SchoolYear,
			&r.MinLng, &r.MinLat, &r.MaxLng, &r.MaxLat,
			&r.CentroidLng, &r.CentroidLat, &r.Geometry,
		); err != nil {
			return nil, fmt.Errorf("failed to scan district row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating district rows: %w", err)
	}
	return out, nil
}
