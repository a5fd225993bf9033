package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/groundsched/api/reservations"
	"github.com/kilianp07/groundsched/core/schedule"
)

var reserveOpts struct {
	file     string
	id       string
	start    string
	finish   string
	duration time.Duration
	priority int
}

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Add reservations from flags or a YAML/JSON file",
	Example: `  groundsched reserve --start 2024-05-01T12:00:00Z --duration 10m --priority 3
  groundsched reserve -f passes.yaml`,
	RunE: runReserve,
}

func init() {
	f := reserveCmd.Flags()
	f.StringVarP(&reserveOpts.file, "file", "f", "", "YAML or JSON list of requests")
	f.StringVar(&reserveOpts.id, "id", "", "reservation id (generated when empty)")
	f.StringVar(&reserveOpts.start, "start", "", "start time, RFC3339")
	f.StringVar(&reserveOpts.finish, "finish", "", "finish time, RFC3339")
	f.DurationVar(&reserveOpts.duration, "duration", 0, "duration, alternative to --finish")
	f.IntVarP(&reserveOpts.priority, "priority", "p", 1, "priority, higher wins")
	rootCmd.AddCommand(reserveCmd)
}

func runReserve(cmd *cobra.Command, args []string) error {
	reqs, err := reserveRequests()
	if err != nil {
		return err
	}
	ranges, err := schedule.RequestsToRanges(reqs, schedule.NewID)
	if err != nil {
		return err
	}
	// ids generated here are sent along so both paths report the same ones
	for i := range reqs {
		reqs[i].ID = ranges[i].ID
	}
	return mutate(cmd,
		func(ctx context.Context, c *reservations.Client) (reservations.MutationResponse, error) {
			return c.Append(ctx, reqs)
		},
		func(ctx context.Context, s *schedule.Store) (schedule.Mutation, error) {
			return s.Append(ctx, ranges...)
		})
}

func reserveRequests() ([]schedule.Request, error) {
	o := reserveOpts
	if o.file != "" {
		f, err := os.Open(o.file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(o.file)), ".")
		return schedule.DecodeRequests(f, format)
	}
	if o.start == "" {
		return nil, fmt.Errorf("%w: --start or --file is required", schedule.ErrValidation)
	}
	start, err := time.Parse(time.RFC3339, o.start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", schedule.ErrValidation, err)
	}
	req := schedule.Request{ID: o.id, Start: start, Priority: o.priority, DurationSeconds: o.duration.Seconds()}
	if o.finish != "" {
		finish, err := time.Parse(time.RFC3339, o.finish)
		if err != nil {
			return nil, fmt.Errorf("%w: finish: %v", schedule.ErrValidation, err)
		}
		req.Finish = finish
	}
	return []schedule.Request{req}, nil
}
