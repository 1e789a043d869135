// Package cli implements the districtctl command line: fetching source
// shapefiles, building district stores, and querying them.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:   "districtctl",
		Short: "CLI for building and querying US school district boundary stores.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var storePath string
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", getenv("STORE_PATH", "districts.db"), "path to the district store (env: STORE_PATH)")

	rootCmd.AddCommand(
		NewFetchCmd().Command(),
		NewBuildCmd().Command(),
		NewLookupCmd().Command(),
		NewStatsCmd().Command(),
		NewVerifyCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func rootFlags(cmd *cobra.Command) (log *slog.Logger, storePath string, err error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get verbose flag: %w", err)
	}
	storePath, err = cmd.Root().PersistentFlags().GetString("store")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get store flag: %w", err)
	}
	return newLogger(verbose), storePath, nil
}
