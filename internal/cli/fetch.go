package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgemaps/districtd/internal/fetch"
)

type FetchCmd struct{}

func NewFetchCmd() *FetchCmd {
	return &FetchCmd{}
}

func (c *FetchCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download an NCES EDGE boundary archive and extract the shapefile pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			year, err := cmd.Flags().GetString("year")
			if err != nil {
				return fmt.Errorf("failed to get year flag: %w", err)
			}
			dest, err := cmd.Flags().GetString("dest")
			if err != nil {
				return fmt.Errorf("failed to get dest flag: %w", err)
			}
			baseURL, err := cmd.Flags().GetString("base-url")
			if err != nil {
				return fmt.Errorf("failed to get base-url flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			f, err := fetch.New(fetch.Config{
				Logger:  log,
				BaseURL: baseURL,
				DestDir: dest,
			})
			if err != nil {
				return err
			}
			res, err := f.Fetch(ctx, year)
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}
			fmt.Printf("shp: %s\ndbf: %s\n", res.ShpPath, res.DbfPath)
			return nil
		},
	}
	cmd.Flags().String("year", "2324", "school year code, e.g. 2324 for SY 2023-2024")
	cmd.Flags().String("dest", ".", "directory to extract the shapefile pair into")
	cmd.Flags().String("base-url", fetch.DefaultBaseURL, "base URL of the EDGE archive endpoint")
	return cmd
}
