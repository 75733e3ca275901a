package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/notify"
	"github.com/Tiliavir/worklog-sync/internal/pipeline"
	"github.com/Tiliavir/worklog-sync/internal/schedule"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var (
	watchSchedule   string
	watchOnce       bool
	watchNoCalendar bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Prepare drafts for the day on a schedule",
	Long: `Run sync, link, fill and review unattended on a cron schedule
(watch.schedule in the config, default weekdays at 17:00). Drafts are
created for the current day but never staged or pushed; a summary is
posted to Slack when notify is configured.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Cron expression overriding watch.schedule")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run once now and exit")
	watchCmd.Flags().BoolVar(&watchNoCalendar, "no-calendar", false, "Skip the Outlook sync")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	cfgApp, err := openApp()
	if err != nil {
		return err
	}
	expr := cfgApp.Config.Watch.Schedule
	loc := cfgApp.Location()
	log := cfgApp.Log
	if err := cfgApp.Close(); err != nil {
		return err
	}
	if watchSchedule != "" {
		expr = watchSchedule
	}

	if watchOnce {
		return watchRun(ctx)
	}
	sched, err := schedule.New(expr, loc, schedule.WithLogger(log))
	if err != nil {
		return err
	}
	fmt.Printf("Watching (%s), next run %s. Ctrl-C to stop.\n", expr, sched.Next(time.Now()).Format("Mon Jan 2 15:04"))
	err = sched.Run(ctx, watchRun)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// watchRun opens the state fresh for every run so that commands executed
// in between are seen.
func watchRun(ctx context.Context) error {
	return withApp(func(a *app.App) error {
		day := timecalc.StartOfDay(time.Now().In(a.Location()))
		steps, state, err := buildFlow(ctx, a, day, day.AddDate(0, 0, 1), flowOptions{calendar: !watchNoCalendar})
		if err != nil {
			return err
		}
		runner := pipeline.Runner{Steps: steps, Log: a.Log}
		state, runErr := runner.Run(ctx, state)
		if err := persistFlow(a, state); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}

		summary := notify.WatchSummary(state)
		fmt.Printf("[%s] %s\n", time.Now().In(a.Location()).Format("15:04"), summary)
		return a.Notifier().Post(context.WithoutCancel(ctx), summary)
	})
}
