// Package store owns the persistent district store: a single sqlite file
// holding one row per district, a composite bbox index, a state-code index,
// and a metadata header. The builder writes it once per NCES release; the
// online path opens it read-only.
package store

// BuilderVersion is bumped whenever the row layout or geometry encoding
// changes. Readers refuse stores written by a newer builder.
const BuilderVersion = 3

const (
	metaKeyBuilderVersion   = "builder_version"
	metaKeySourceFile       = "source_file"
	metaKeySchoolYear       = "school_year"
	metaKeyTolerance        = "tolerance"
	metaKeyDistrictCount    = "district_count"
	metaKeyGeometryEncoding = "geometry_encoding"
	metaKeyGeometryCRC      = "geometry_crc32"
)

const schemaDDL = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE districts (
	district_id   TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	state_code    TEXT NOT NULL,
	grade_lowest  TEXT NOT NULL DEFAULT '',
	grade_highest TEXT NOT NULL DEFAULT '',
	land_area_m2  REAL NOT NULL CHECK (land_area_m2 >= 0),
	water_area_m2 REAL NOT NULL CHECK (water_area_m2 >= 0),
	school_year   TEXT NOT NULL,
	min_lng       REAL NOT NULL,
	min_lat       REAL NOT NULL,
	max_lng       REAL NOT NULL,
	max_lat       REAL NOT NULL,
	centroid_lng  REAL NOT NULL,
	centroid_lat  REAL NOT NULL,
	geometry      BLOB NOT NULL
);
`

// The bbox index column order matters: the probe predicate is
// min_lng <= q AND max_lng >= q AND min_lat <= q AND max_lat >= q, and the
// composite numeric index satisfies it in one index scan.
const indexDDL = `
CREATE INDEX districts_bbox_idx ON districts (min_lng, max_lng, min_lat, max_lat);
CREATE INDEX districts_state_idx ON districts (state_code);
`

const rowColumns = `district_id, name, state_code, grade_lowest, grade_highest,
	land_area_m2, water_area_m2, school_year,
	min_lng, min_lat, max_lng, max_lat, centroid_lng, centroid_lat, geometry`
