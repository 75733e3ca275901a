package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var (
	logAt      string
	logDate    string
	logComment string
	logStage   bool
)

var logCmd = &cobra.Command{
	Use:   "log <issue-key> <duration>",
	Short: "Create a draft worklog, e.g. wsync log ABC-12 1h30m --at 09:00",
	Args:  cobra.ExactArgs(2),
	RunE:  runLog,
}

func init() {
	logCmd.Flags().StringVar(&logAt, "at", "", "Start time (HH:MM); defaults to now minus the duration")
	logCmd.Flags().StringVar(&logDate, "date", "", "Date (YYYY-MM-DD); defaults to today")
	logCmd.Flags().StringVar(&logComment, "comment", "", "Worklog comment")
	logCmd.Flags().BoolVar(&logStage, "stage", false, "Stage the entry right away")
}

func runLog(cmd *cobra.Command, args []string) error {
	secs, err := parseDuration(args[1])
	if err != nil {
		return err
	}

	return withApp(func(a *app.App) error {
		loc := a.Location()
		now := time.Now().In(loc)
		day := timecalc.StartOfDay(now)
		if logDate != "" {
			if day, err = time.ParseInLocation("2006-01-02", logDate, loc); err != nil {
				return fmt.Errorf("invalid --date value %q: %w", logDate, err)
			}
		}
		start := day.Add(now.Sub(timecalc.StartOfDay(now))).Add(-time.Duration(secs) * time.Second)
		if logAt != "" {
			offset, err := timecalc.ParseClock(logAt)
			if err != nil {
				return fmt.Errorf("invalid --at value %q: %w", logAt, err)
			}
			start = day.Add(offset)
		}

		staging := a.Staging()
		e, err := staging.CreateDraft(model.Entry{
			IssueKey:        args[0],
			DurationSeconds: secs,
			Start:           start,
			Comment:         logComment,
			Source:          model.SourceManual,
		})
		if err != nil {
			return err
		}
		status := "draft"
		if logStage {
			if err := firstError(staging.Stage([]string{e.ID})); err != nil {
				return err
			}
			status = "staged"
		}
		fmt.Printf("✓ Logged %s %s on %s at %s (%s) [%s]\n",
			timecalc.FormatDuration(secs), e.IssueKey, start.Format("2006-01-02"), start.Format("15:04"), e.ID, status)
		return nil
	})
}
