package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/groundsched/app"
	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/infra/diaglog"
)

var historyOpts struct {
	id    string
	op    string
	since time.Duration
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the classification history from the diagnostic log",
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyOpts.id, "id", "", "only records about this reservation")
	f.StringVar(&historyOpts.op, "op", "", "only append, remove or expire records")
	f.DurationVar(&historyOpts.since, "since", 0, "only records newer than this")
	f.IntVarP(&historyOpts.limit, "limit", "n", 0, "keep the most recent records, 0 for all")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, cfg, err := openOffline(cmd.Context(), app.ReadOnly())
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	diag := svc.Diagnostics()
	if diag == nil {
		return fmt.Errorf("diagnostics are disabled in %s", cfgPath)
	}
	loc, err := cfg.Station.Location()
	if err != nil {
		return err
	}

	q := diaglog.Query{ID: historyOpts.id, Operation: schedule.Operation(historyOpts.op), Limit: historyOpts.limit}
	if historyOpts.since > 0 {
		q.Start = time.Now().Add(-historyOpts.since)
	}
	recs, err := diag.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range recs {
		for _, msg := range r.Messages {
			if _, err := fmt.Fprintf(out, "%s v%d %-6s %s\n", r.Time.In(loc).Format(time.DateTime), r.Version, r.Operation, msg); err != nil {
				return err
			}
		}
	}
	return nil
}
