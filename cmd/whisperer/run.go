package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bird_whisperer/internal/app"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one digest now and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			d, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.store.Close() }()

			res, err := d.app.RunDigest(ctx, app.TriggerCLI)
			if err != nil {
				return fmt.Errorf("digest run: %w", err)
			}
			d.log.Info("digest run complete", "run_id", res.ID)
			return nil
		},
	}
}
