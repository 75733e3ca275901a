package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var (
	reportDate   string
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show time per issue for a week",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Any day of the week to report (YYYY-MM-DD); defaults to this week")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
}

// issueTotal is the time logged on one issue, split by lifecycle.
type issueTotal struct {
	IssueKey       string `json:"issue"`
	PendingMinutes int64  `json:"pending_minutes"`
	PushedMinutes  int64  `json:"pushed_minutes"`
}

func (t issueTotal) minutes() int64 { return t.PendingMinutes + t.PushedMinutes }

type weekReport struct {
	Week         string       `json:"week"`
	Issues       []issueTotal `json:"issues"`
	TotalMinutes int64        `json:"total_minutes"`
}

func runReport(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		day := time.Now().In(a.Location())
		if reportDate != "" {
			d, err := time.ParseInLocation("2006-01-02", reportDate, a.Location())
			if err != nil {
				return fmt.Errorf("invalid --date value %q: %w", reportDate, err)
			}
			day = d
		}
		monday, _ := timecalc.WeekRange(day)
		rep := buildReport(timecalc.ISOWeekLabel(day), between(a.Store.All(), monday, monday.AddDate(0, 0, 7)))
		return writeReport(os.Stdout, rep, reportFormat)
	})
}

// buildReport sums entries per issue. Reverted entries do not count.
func buildReport(label string, entries []model.Entry) weekReport {
	byKey := map[string]*issueTotal{}
	for _, e := range entries {
		if e.Status == model.StatusReverted {
			continue
		}
		t, ok := byKey[e.IssueKey]
		if !ok {
			t = &issueTotal{IssueKey: e.IssueKey}
			byKey[e.IssueKey] = t
		}
		if e.Status == model.StatusPushed {
			t.PushedMinutes += e.DurationSeconds / 60
		} else {
			t.PendingMinutes += e.DurationSeconds / 60
		}
	}
	rep := weekReport{Week: label, Issues: []issueTotal{}}
	for _, t := range byKey {
		rep.Issues = append(rep.Issues, *t)
		rep.TotalMinutes += t.minutes()
	}
	sort.Slice(rep.Issues, func(i, j int) bool { return rep.Issues[i].IssueKey < rep.Issues[j].IssueKey })
	return rep
}

func writeReport(w io.Writer, rep weekReport, format string) error {
	switch format {
	case "csv":
		fmt.Fprintln(w, "issue,pending_minutes,pushed_minutes")
		for _, t := range rep.Issues {
			fmt.Fprintf(w, "%s,%d,%d\n", csvEscape(t.IssueKey), t.PendingMinutes, t.PushedMinutes)
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "md":
		fmt.Fprintf(w, "Week %s\n", rep.Week)
		fmt.Fprintln(w, "----------------------------------------")
		for _, t := range rep.Issues {
			fmt.Fprintf(w, "%-20s%8s  (%s pushed)\n", t.IssueKey,
				timecalc.FormatDuration(t.minutes()*60), timecalc.FormatDuration(t.PushedMinutes*60))
		}
		fmt.Fprintln(w, "----------------------------------------")
		fmt.Fprintf(w, "%-20s%8s\n", "Total", timecalc.FormatDuration(rep.TotalMinutes*60))
	default:
		return fmt.Errorf("unknown format %q (md, csv, json)", format)
	}
	return nil
}
