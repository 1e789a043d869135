package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgemaps/districtd/internal/geometry"
	"github.com/edgemaps/districtd/internal/shapefile"
	"github.com/edgemaps/districtd/internal/store"
)

type BuildCmd struct{}

func NewBuildCmd() *BuildCmd {
	return &BuildCmd{}
}

func (c *BuildCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a district store from an NCES EDGE shapefile pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, storePath, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			shpPath, err := cmd.Flags().GetString("shp")
			if err != nil {
				return fmt.Errorf("failed to get shp flag: %w", err)
			}
			dbfPath, err := cmd.Flags().GetString("dbf")
			if err != nil {
				return fmt.Errorf("failed to get dbf flag: %w", err)
			}
			schoolYear, err := cmd.Flags().GetString("school-year")
			if err != nil {
				return fmt.Errorf("failed to get school-year flag: %w", err)
			}
			tolerance, err := cmd.Flags().GetFloat64("tolerance")
			if err != nil {
				return fmt.Errorf("failed to get tolerance flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			summary, err := runBuild(ctx, log, buildOptions{
				ShpPath:    shpPath,
				DbfPath:    dbfPath,
				StorePath:  storePath,
				SchoolYear: schoolYear,
				Tolerance:  tolerance,
			})
			if err != nil {
				return err
			}
			log.Info("district store built",
				"path", storePath,
				"districts", summary.Written,
				"skipped_no_geoid", summary.SkippedNoGEOID,
				"skipped_non_polygon", summary.SkippedNonPolygon,
				"rejected_geometries", summary.RejectedGeometries,
			)
			return nil
		},
	}
	cmd.Flags().String("shp", "", "path to the .shp file")
	cmd.Flags().String("dbf", "", "path to the .dbf file")
	cmd.Flags().String("school-year", "", "school year label, e.g. 2023-2024 (default: from source attributes)")
	cmd.Flags().Float64("tolerance", geometry.DefaultTolerance, "simplification tolerance in degrees")
	_ = cmd.MarkFlagRequired("shp")
	_ = cmd.MarkFlagRequired("dbf")
	return cmd
}

type buildOptions struct {
	ShpPath    string
	DbfPath    string
	StorePath  string
	SchoolYear string
	Tolerance  float64
}

type buildSummary struct {
	Written            uint64
	SkippedNoGEOID     uint64
	SkippedNonPolygon  uint64
	RejectedGeometries uint64
}

// runBuild streams the shapefile through normalization and encoding into a
// fresh store. The store appears atomically on success; any failure leaves
// an existing store untouched.
func runBuild(ctx context.Context, log *slog.Logger, opts buildOptions) (*buildSummary, error) {
	reader, err := shapefile.Open(shapefile.Config{
		Logger:  log,
		ShpPath: opts.ShpPath,
		DbfPath: opts.DbfPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer reader.Close()

	normalizer, err := geometry.NewNormalizer(geometry.NormalizerConfig{
		Logger:    log,
		Tolerance: opts.Tolerance,
	})
	if err != nil {
		return nil, err
	}
	codec, err := geometry.NewCodec()
	if err != nil {
		return nil, err
	}

	builder, err := store.NewBuilder(store.BuilderConfig{
		Logger:     log,
		Path:       opts.StorePath,
		SourceFile: opts.ShpPath,
		SchoolYear: opts.SchoolYear,
		Tolerance:  normalizer.Tolerance(),
	})
	if err != nil {
		return nil, err
	}
	defer builder.Abort()

	schoolYear := opts.SchoolYear
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := reader.Record()
		if schoolYear == "" {
			schoolYear = rec.Attributes.SchoolYear
		}

		norm, err := normalizer.Normalize(rec.Attributes.GEOID, rec.Geometry)
		if err != nil {
			if errors.Is(err, geometry.ErrSelfIntersecting) {
				continue
			}
			log.Warn("skipping district with unusable geometry",
				"district_id", rec.Attributes.GEOID, "error", err)
			continue
		}

		blob, err := codec.Encode(norm.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to encode geometry for %s: %w", rec.Attributes.GEOID, err)
		}

		row := store.Row{
			DistrictID:   rec.Attributes.GEOID,
			Name:         rec.Attributes.Name,
			StateCode:    rec.Attributes.StateFP,
			GradeLowest:  rec.Attributes.LoGrade,
			GradeHighest: rec.Attributes.HiGrade,
			LandAreaM2:   rec.Attributes.LandAreaM2,
			WaterAreaM2:  rec.Attributes.WaterAreaM2,
			SchoolYear:   schoolYear,
			MinLng:       norm.Bound.Min[0],
			MinLat:       norm.Bound.Min[1],
			MaxLng:       norm.Bound.Max[0],
			MaxLat:       norm.Bound.Max[1],
			CentroidLng:  norm.Centroid[0],
			CentroidLat:  norm.Centroid[1],
			Geometry:     blob,
		}
		if err := builder.Add(ctx, row); err != nil {
			return nil, fmt.Errorf("failed to add district %s: %w", rec.Attributes.GEOID, err)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("shapefile read failed: %w", err)
	}

	builder.SetSchoolYear(schoolYear)
	if err := builder.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit store: %w", err)
	}
	return &buildSummary{
		Written:            builder.Count(),
		SkippedNoGEOID:     reader.SkippedNoGEOID(),
		SkippedNonPolygon:  reader.SkippedNonPolygon(),
		RejectedGeometries: normalizer.Rejected(),
	}, nil
}
