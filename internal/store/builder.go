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

	"github.com/edgemaps/districtd/internal/geometry"
)

type BuilderConfig struct {
	Logger     *slog.Logger
	Path       string
	SourceFile string
	SchoolYear string
	Tolerance  float64
}

func (c *BuilderConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Path == "" {
		return errors.New("store path is required")
	}
	if c.Tolerance <= 0 {
		return errors.New("tolerance must be positive")
	}
	return nil
}

// Builder writes a fresh store into <path>.tmp inside a single transaction
// and atomically renames it over the target on Commit. A failed or
// abandoned build leaves no partial output at the target path.
type Builder struct {
	log *slog.Logger
	cfg BuilderConfig

	tmpPath string
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt

	count uint64
	crc   uint32
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmpPath := cfg.Path + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale temp store: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	// Single writer, throwaway file on failure: plain journaling and
	// NORMAL sync are enough, and an order of magnitude faster to build.
	for _, pragma := range []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	insert, err := tx.Prepare(`INSERT INTO districts (` + rowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return &Builder{
		log:     cfg.Logger,
		cfg:     cfg,
		tmpPath: tmpPath,
		db:      db,
		tx:      tx,
		insert:  insert,
		crc:     0,
	}, nil
}

// Add inserts one district row. Rows must carry a non-empty id and a
// geometry blob; duplicate ids fail the build.
func (b *Builder) Add(ctx context.Context, row Row) error {
	if row.DistrictID == "" {
		return errors.New("district id is empty")
	}
	if len(row.Geometry) == 0 {
		return fmt.Errorf("district %s has no geometry", row.DistrictID)
	}
	_, err := b.insert.ExecContext(ctx,
		row.DistrictID, row.Name, row.StateCode, row.GradeLowest, row.GradeHighest,
		row.LandAreaM2, row.WaterAreaM2, row.SchoolYear,
		row.MinLng, row.MinLat, row.MaxLng, row.MaxLat,
		row.CentroidLng, row.CentroidLat, row.Geometry,
	)
	if err != nil {
		return fmt.Errorf("failed to insert district %s: %w", row.DistrictID, err)
	}
	b.count++
	b.crc = crc32.Update(b.crc, crc32.IEEETable, []byte(row.DistrictID))
	b.crc = crc32.Update(b.crc, crc32.IEEETable, row.Geometry)
	return nil
}

// Commit writes the metadata header and indexes, runs the ANALYZE pass so
// read-time query plans are stable, and atomically moves the store into
// place.
// SetSchoolYear records the school year label when it is only known after
// the first source record has been read. Must be called before Commit.
func (b *Builder) SetSchoolYear(sy string) {
	if b.cfg.SchoolYear == "" {
		b.cfg.SchoolYear = sy
	}
}

func (b *Builder) Commit(ctx context.Context) error {
	if b.cfg.SchoolYear == "" {
		b.Abort()
		return errors.New("school year is required")
	}
	meta := map[string]string{
		metaKeyBuilderVersion:   strconv.Itoa(BuilderVersion),
		metaKeySourceFile:       b.cfg.SourceFile,
		metaKeySchoolYear:       b.cfg.SchoolYear,
		metaKeyTolerance:        strconv.FormatFloat(b.cfg.Tolerance, 'g', -1, 64),
		metaKeyDistrictCount:    strconv.FormatUint(b.count, 10),
		metaKeyGeometryEncoding: geometry.Encoding,
		metaKeyGeometryCRC:      strconv.FormatUint(uint64(b.crc), 10),
	}
	for k, v := range meta {
		if _, err := b.tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			b.Abort()
			return fmt.Errorf("failed to write meta %s: %w", k, err)
		}
	}
	if _, err := b.tx.ExecContext(ctx, indexDDL); err != nil {
		b.Abort()
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	if err := b.tx.Commit(); err != nil {
		b.Abort()
		return fmt.Errorf("failed to commit store: %w", err)
	}
	b.tx = nil

	if _, err := b.db.Exec("ANALYZE"); err != nil {
		b.Abort()
		return fmt.Errorf("failed to analyze store: %w", err)
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close temp store: %w", err)
	}
	b.db = nil

	if err := os.Rename(b.tmpPath, b.cfg.Path); err != nil {
		return fmt.Errorf("failed to move store into place: %w", err)
	}
	b.log.Info("district store built",
		"path", b.cfg.Path,
		"districts", b.count,
		"school_year", b.cfg.SchoolYear,
		"tolerance", b.cfg.Tolerance,
	)
	return nil
}

// Abort discards the build and removes the temp file. Safe to call after a
// failed Commit.
func (b *Builder) Abort() {
	if b.tx != nil {
		_ = b.tx.Rollback()
		b.tx = nil
	}
	if b.db != nil {
		_ = b.db.Close()
		b.db = nil
	}
	_ = os.Remove(b.tmpPath)
}

// Count reports the number of rows added so far.
func (b *Builder) Count() uint64 { return b.count }
