package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edgemaps/districtd/internal/engine"
	"github.com/edgemaps/districtd/internal/store"
)

type StatsCmd struct{}

func NewStatsCmd() *StatsCmd {
	return &StatsCmd{}
}

func (c *StatsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store metadata and per-state district counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, storePath, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			byState, err := cmd.Flags().GetBool("by-state")
			if err != nil {
				return fmt.Errorf("failed to get by-state flag: %w", err)
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

			stats := eng.Stats()
			fmt.Printf("districts:    %d\n", stats.TotalDistricts)
			fmt.Printf("school year:  %s\n", stats.SchoolYear)
			fmt.Printf("tolerance:    %g\n", stats.Tolerance)
			fmt.Printf("rss:          %.1f MB\n", float64(stats.MemoryRSSBytes)/(1<<20))

			if byState {
				counts, err := eng.CountByState(ctx)
				if err != nil {
					return fmt.Errorf("failed to count by state: %w", err)
				}
				printStateCounts(counts)
			}
			return nil
		},
	}
	cmd.Flags().Bool("by-state", false, "include per-state district counts")
	return cmd
}

func printStateCounts(counts map[string]uint64) {
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"State FIPS", "Districts"})
	for _, code := range codes {
		table.Append([]string{code, fmt.Sprintf("%d", counts[code])})
	}
	table.Render()
}
