package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var (
	listRange  rangeFlags
	listStatus []string
	listAll    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List worklog entries",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listRange.register(listCmd)
	listCmd.Flags().StringSliceVar(&listStatus, "status", nil, "Only these statuses (draft, staged, pushed, reverted)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Ignore the date range")
}

func runList(cmd *cobra.Command, args []string) error {
	statuses := make([]model.Status, 0, len(listStatus))
	for _, s := range listStatus {
		st := model.Status(strings.ToLower(strings.TrimSpace(s)))
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
		statuses = append(statuses, st)
	}

	return withApp(func(a *app.App) error {
		from, to, err := listRange.resolve(time.Now(), a.Location(), true)
		if err != nil {
			return err
		}
		var entries []model.Entry
		if len(statuses) > 0 {
			entries = a.Store.ByStatus(statuses...)
		} else {
			entries = a.Store.All()
		}
		if !listAll {
			entries = between(entries, from, to)
		}
		printList(entries, a.Location())
		return nil
	})
}

func between(entries []model.Entry, from, to time.Time) []model.Entry {
	var out []model.Entry
	for _, e := range entries {
		if !e.Start.Before(from) && e.Start.Before(to) {
			out = append(out, e)
		}
	}
	return out
}

// printList groups entries by date and prints them with a daily total.
func printList(entries []model.Entry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Println("No entries found.")
		return
	}

	var (
		currentDay string
		dayTotal   int64
	)
	flush := func() {
		if currentDay != "" {
			fmt.Printf("  %-36s%s\n", "", timecalc.FormatDuration(dayTotal))
		}
	}
	for _, e := range entries {
		start := e.Start.In(loc)
		day := start.Format("2006-01-02 Mon")
		if day != currentDay {
			flush()
			fmt.Println(day)
			currentDay, dayTotal = day, 0
		}
		if e.Status != model.StatusReverted {
			dayTotal += e.DurationSeconds
		}
		fmt.Println("  " + formatEntry(e, loc))
	}
	flush()
}

func formatEntry(e model.Entry, loc *time.Location) string {
	comment := ""
	if e.Comment != "" {
		comment = "  " + e.Comment
	}
	line := fmt.Sprintf("%s–%s  %-10s %-9s %7s  %s%s",
		e.Start.In(loc).Format("15:04"), e.End().In(loc).Format("15:04"),
		e.IssueKey, e.Status, timecalc.FormatDuration(e.DurationSeconds), e.ID, comment)
	if e.LastError != "" {
		line += "\n      ! last error: " + e.LastError
	}
	return line
}
