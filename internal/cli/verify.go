package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgemaps/districtd/internal/store"
)

type VerifyCmd struct{}

func NewVerifyCmd() *VerifyCmd {
	return &VerifyCmd{}
}

func (c *VerifyCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the store checksum and compare it against the header",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, storePath, err := rootFlags(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			st, err := store.Open(store.Config{Logger: log, Path: storePath})
			if err != nil {
				return fmt.Errorf("failed to open district store: %w", err)
			}
			defer st.Close()

			if err := st.Verify(ctx); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Printf("store ok: %d districts, school year %s\n",
				st.Stats().TotalDistricts, st.Stats().SchoolYear)
			return nil
		},
	}
	return cmd
}
