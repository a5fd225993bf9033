package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/groundsched/api/reservations"
	"github.com/kilianp07/groundsched/core/schedule"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel ID...",
	Short: "Withdraw reservations by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	return mutate(cmd,
		func(ctx context.Context, c *reservations.Client) (reservations.MutationResponse, error) {
			return c.Remove(ctx, args...)
		},
		func(ctx context.Context, s *schedule.Store) (schedule.Mutation, error) {
			return s.Remove(ctx, args...)
		})
}
