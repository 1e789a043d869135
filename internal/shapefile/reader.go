// Package shapefile streams district features from the NCES EDGE shapefile
// pair (.shp geometry + .dbf attribute table) in a single forward pass.
package shapefile

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// SourceFormatError marks a malformed source pair: bad file headers or a
// .dbf record count that disagrees with the .shp geometry count. It aborts
// the build.
type SourceFormatError struct {
	Path   string
	Reason string
}

func (e *SourceFormatError) Error() string {
	return fmt.Sprintf("source format error in %s: %s", e.Path, e.Reason)
}

// Attributes are the raw NCES columns carried by each feature.
type Attributes struct {
	GEOID      string
	Name       string
	StateFP    string
	LoGrade    string
	HiGrade    string
	LandAreaM2 float64
	WaterAreaM2 float64
	SchoolYear string
}

// Record is one district feature: raw attributes plus a WGS84 Polygon or
// MultiPolygon.
type Record struct {
	Attributes Attributes
	Geometry   orb.Geometry
}

type Config struct {
	Logger  *slog.Logger
	ShpPath string
	DbfPath string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.ShpPath == "" {
		return errors.New("shp path is required")
	}
	if c.DbfPath == "" {
		return errors.New("dbf path is required")
	}
	// The shp library resolves the attribute table from the .shp path, so a
	// non-sibling .dbf would silently be ignored.
	if sibling := strings.TrimSuffix(c.ShpPath, ".shp") + ".dbf"; c.DbfPath != sibling {
		return fmt.Errorf("dbf path must be the sibling of the shp path (%s), got %s", sibling, c.DbfPath)
	}
	return nil
}

// Reader yields records lazily; it is finite and not restartable within one
// build. Records with a missing GEOID or a non-polygonal geometry are
// skipped with counted warnings.
type Reader struct {
	log *slog.Logger
	cfg Config

	sr     *shp.Reader
	fields fieldIndex

	dbfRecords uint32
	read       uint32

	cur Record
	err error

	skippedNoGEOID   uint64
	skippedNonPolygon uint64
}

type fieldIndex struct {
	geoid, name, statefp, lograde, higrade, aland, awater, schoolYear int
}

// Open validates both file headers before any feature is read. The .shp
// main header must carry the ESRI magic and a polygonal shape type; the
// .dbf header supplies the record count used for the consistency check at
// end of stream.
func Open(cfg Config) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := checkShpHeader(cfg.ShpPath); err != nil {
		return nil, err
	}
	dbfCount, err := readDbfRecordCount(cfg.DbfPath)
	if err != nil {
		return nil, err
	}

	sr, err := shp.Open(cfg.ShpPath)
	if err != nil {
		return nil, &SourceFormatError{Path: cfg.ShpPath, Reason: err.Error()}
	}

	fields, err := indexFields(sr.Fields())
	if err != nil {
		sr.Close()
		return nil, &SourceFormatError{Path: cfg.DbfPath, Reason: err.Error()}
	}

	return &Reader{
		log:        cfg.Logger,
		cfg:        cfg,
		sr:         sr,
		fields:     fields,
		dbfRecords: dbfCount,
	}, nil
}

func indexFields(fields []shp.Field) (fieldIndex, error) {
	idx := fieldIndex{geoid: -1, name: -1, statefp: -1, lograde: -1, higrade: -1, aland: -1, awater: -1, schoolYear: -1}
	for i, f := range fields {
		switch strings.ToUpper(f.String()) {
		case "GEOID":
			idx.geoid = i
		case "NAME":
			idx.name = i
		case "STATEFP":
			idx.statefp = i
		case "LOGRADE":
			idx.lograde = i
		case "HIGRADE":
			idx.higrade = i
		case "ALAND":
			idx.aland = i
		case "AWATER":
			idx.awater = i
		case "SCHOOLYEAR":
			idx.schoolYear = i
		}
	}
	if idx.geoid < 0 {
		return idx, errors.New("attribute table has no GEOID column")
	}
	return idx, nil
}

// Next advances to the next usable record. It returns false at end of
// stream or on error; check Err afterwards.
func (r *Reader) Next() bool {
	for r.sr.Next() {
		n, shape := r.sr.Shape()
		r.read++

		geoid := strings.TrimSpace(r.sr.ReadAttribute(n, r.fields.geoid))
		if geoid == "" {
			r.skippedNoGEOID++
			r.log.Warn("skipping record without GEOID", "record", n)
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			r.skippedNonPolygon++
			r.log.Warn("skipping non-polygonal record", "record", n, "geoid", geoid)
			continue
		}
		geom := polygonToOrb(poly)
		if geom == nil {
			r.skippedNonPolygon++
			r.log.Warn("skipping record with empty geometry", "record", n, "geoid", geoid)
			continue
		}

		r.cur = Record{
			Attributes: Attributes{
				GEOID:       geoid,
				Name:        r.attr(n, r.fields.name),
				StateFP:     r.attr(n, r.fields.statefp),
				LoGrade:     r.attr(n, r.fields.lograde),
				HiGrade:     r.attr(n, r.fields.higrade),
				LandAreaM2:  r.attrFloat(n, r.fields.aland),
				WaterAreaM2: r.attrFloat(n, r.fields.awater),
				SchoolYear:  r.attr(n, r.fields.schoolYear),
			},
			Geometry: geom,
		}
		return true
	}

	if err := r.sr.Err(); err != nil {
		r.err = &SourceFormatError{Path: r.cfg.ShpPath, Reason: err.Error()}
		return false
	}
	if r.read != r.dbfRecords {
		r.err = &SourceFormatError{
			Path:   r.cfg.DbfPath,
			Reason: fmt.Sprintf("attribute table has %d records, shapefile has %d", r.dbfRecords, r.read),
		}
	}
	return false
}

// Record returns the record positioned by the last successful Next.
func (r *Reader) Record() Record { return r.cur }

func (r *Reader) Err() error { return r.err }

// SkippedNoGEOID and SkippedNonPolygon report how many source records were
// dropped, for the build summary.
func (r *Reader) SkippedNoGEOID() uint64    { return r.skippedNoGEOID }
func (r *Reader) SkippedNonPolygon() uint64 { return r.skippedNonPolygon }

func (r *Reader) Close() error { return r.sr.Close() }

func (r *Reader) attr(row, field int) string {
	if field < 0 {
		return ""
	}
	return strings.TrimSpace(r.sr.ReadAttribute(row, field))
}

func (r *Reader) attrFloat(row, field int) float64 {
	s := r.attr(row, field)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// polygonToOrb maps shapefile ring winding onto polygons with holes:
// clockwise rings open a new polygon, counter-clockwise rings are holes of
// the last opened polygon. A lone leading hole (malformed winding) is
// treated as an outer ring.
func polygonToOrb(p *shp.Polygon) orb.Geometry {
	var polys []orb.Polygon
	for i := 0; i < int(p.NumParts); i++ {
		start := int(p.Parts[i])
		end := int(p.NumPoints)
		if i+1 < int(p.NumParts) {
			end = int(p.Parts[i+1])
		}
		if end-start < 4 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}

		if ring.Orientation() == orb.CW || len(polys) == 0 {
			polys = append(polys, orb.Polygon{ring})
		} else {
			polys[len(polys)-1] = append(polys[len(polys)-1], ring)
		}
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	default:
		return orb.MultiPolygon(polys)
	}
}
