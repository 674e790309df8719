package main

import (
	"fmt"

	"booking-service/internal/service"

	"github.com/spf13/cobra"
)

func recomputeCmd() *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Run one event lifecycle pass",
		Long: `Re-derive event statuses from date and enrollment counts.

Examples:
  bookingctl recompute
  bookingctl recompute --event 0b7f2a4e-5c6d-4e7f-8a9b-1c2d3e4f5a6b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			lifecycle := service.NewLifecycleService(d.store, d.publisher)
			out := cmd.OutOrStdout()

			if eventID != "" {
				changed, err := lifecycle.RecomputeEvent(cmd.Context(), eventID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Event %s updated: %t\n", eventID, changed)
				return nil
			}

			summary, err := lifecycle.RecomputeEventStatuses(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Scanned %d, updated %d, failed %d\n", summary.Scanned, summary.Updated, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventID, "event", "", "only recompute this event")
	return cmd
}
