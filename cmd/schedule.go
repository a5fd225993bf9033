package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/groundsched/app"
	"github.com/kilianp07/groundsched/core/timerange"
	"github.com/kilianp07/groundsched/pkg/export"
)

var scheduleOpts struct {
	origin   bool
	previous bool
	upcoming bool
	limit    int
	format   string
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the merged schedule",
	RunE:  runSchedule,
}

func init() {
	f := scheduleCmd.Flags()
	f.BoolVar(&scheduleOpts.origin, "origin", false, "print reservations as requested")
	f.BoolVar(&scheduleOpts.previous, "previous", false, "print the schedule before the last mutation")
	f.BoolVar(&scheduleOpts.upcoming, "upcoming", false, "only fragments starting from now")
	f.IntVarP(&scheduleOpts.limit, "limit", "n", 0, "maximum rows, 0 for all")
	f.StringVarP(&scheduleOpts.format, "format", "o", "table", "output format: table, json or csv")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	svc, cfg, err := openOffline(cmd.Context(), app.ReadOnly())
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	loc, err := cfg.Station.Location()
	if err != nil {
		return err
	}

	now := time.Now()
	var rows []timerange.TimeRange
	switch {
	case scheduleOpts.origin:
		rows = svc.Store.Origin()
	case scheduleOpts.previous:
		rows = svc.Store.Previous()
	case scheduleOpts.upcoming:
		rows = svc.Store.Upcoming(now, scheduleOpts.limit)
	default:
		rows = svc.Store.Schedule()
	}
	if scheduleOpts.limit > 0 && len(rows) > scheduleOpts.limit {
		rows = rows[:scheduleOpts.limit]
	}

	out := cmd.OutOrStdout()
	switch scheduleOpts.format {
	case "json":
		return export.WriteJSON(out, rows)
	case "csv":
		return export.WriteCSV(out, rows)
	case "table", "":
		_, err = fmt.Fprintln(out, renderSchedule(rows, loc, now))
		return err
	default:
		return fmt.Errorf("unknown format %q", scheduleOpts.format)
	}
}

func renderSchedule(rows []timerange.TimeRange, loc *time.Location, now time.Time) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Start", "Finish", "Duration", "Priority", "Parts", "When"})
	for _, r := range rows {
		when := humanize.RelTime(r.Start, now, "ago", "from now")
		if r.Covers(now) {
			when = "active"
		}
		tbl.AppendRow(table.Row{
			r.ID,
			r.Start.In(loc).Format(time.DateTime),
			r.Finish.In(loc).Format(time.DateTime),
			r.Duration().String(),
			r.Priority,
			r.Parts,
			when,
		})
	}
	tbl.AppendFooter(table.Row{"", "", "Total", timerange.TotalDuration(rows).String(), "", len(rows), ""})
	return tbl.Render()
}
