package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edgemaps/districtd/internal/engine"
	"github.com/edgemaps/districtd/internal/store"
)

type LookupCmd struct{}

func NewLookupCmd() *LookupCmd {
	return &LookupCmd{}
}

func (c *LookupCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <lat> <lng>",
		Short: "Resolve a coordinate to its school district",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, storePath, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q", args[0])
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q", args[1])
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			st, err := store.Open(store.Config{Logger: log, Path: storePath})
			if err != nil {
				return fmt.Errorf("failed to open district store: %w", err)
			}
			eng, err := engine.New(engine.Config{Logger: log, Store: st})
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(context.Background()) }()

			res := eng.Lookup(ctx, lat, lng)
			switch res.Kind {
			case engine.KindError:
				return fmt.Errorf("lookup failed: %s", res.Err.Error())
			case engine.KindNotFound:
				fmt.Println("no district found (empty store)")
				return nil
			}

			printResult(res)
			return nil
		},
	}
	return cmd
}

func printResult(res engine.Result) {
	match := "exact"
	distance := "-"
	if res.Kind == engine.KindApproximate {
		match = "approximate"
		distance = fmt.Sprintf("%d m", res.DistanceMeters)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"District ID", "Name", "State", "Grades", "Area (sq mi)", "School Year", "Match", "Distance"})
	table.Append([]string{
		res.District.DistrictID,
		res.District.Name,
		res.District.StateCode,
		res.District.GradeRange,
		fmt.Sprintf("%.1f", res.District.AreaSqMiles),
		res.District.SchoolYear,
		match,
		distance,
	})
	table.Render()
}
