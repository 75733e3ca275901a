package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/msgraph"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var meetingsCmd = &cobra.Command{
	Use:   "meetings",
	Short: "Outlook calendar meetings",
}

var (
	meetingsSyncRange  rangeFlags
	meetingsSyncDryRun bool
	meetingsListRange  rangeFlags
)

var meetingsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import Outlook calendar events as meetings",
	Long: `Fetch calendar events from Microsoft Outlook via the Graph API and store
them as meetings. Cancelled, all-day, private and free events are ignored.
Re-running is idempotent: unchanged events are skipped and changed ones
updated in place, keeping their issue link.`,
	Args: cobra.NoArgs,
	RunE: runMeetingsSync,
}

var meetingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored meetings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			from, to, err := meetingsListRange.resolve(time.Now(), a.Location(), true)
			if err != nil {
				return err
			}
			ms := a.MeetingsBetween(from, to)
			if len(ms) == 0 {
				fmt.Println("No meetings found.")
				return nil
			}
			loc := a.Location()
			for _, m := range ms {
				fmt.Printf("%s–%s  %-10s %7s  %s\n",
					m.Start.In(loc).Format("2006-01-02 15:04"), m.End.In(loc).Format("15:04"),
					m.IssueKey, timecalc.FormatDuration(m.DurationSeconds()), m.Title)
			}
			return nil
		})
	},
}

func init() {
	meetingsSyncRange.register(meetingsSyncCmd)
	meetingsSyncCmd.Flags().BoolVar(&meetingsSyncDryRun, "dry-run", false, "Show what would be imported without saving")
	meetingsListRange.register(meetingsListCmd)

	meetingsCmd.AddCommand(meetingsSyncCmd)
	meetingsCmd.AddCommand(meetingsListCmd)
}

func runMeetingsSync(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		from, to, err := meetingsSyncRange.resolve(time.Now(), a.Location(), false)
		if err != nil {
			return err
		}
		dryTag := ""
		if meetingsSyncDryRun {
			dryTag = " [dry-run]"
		}
		fmt.Printf("Syncing Outlook events (%s → %s)%s...\n\n",
			from.Format("2006-01-02"), to.AddDate(0, 0, -1).Format("2006-01-02"), dryTag)

		source, err := a.Calendar(ctx, os.Stdout)
		if err != nil {
			return err
		}
		fresh, err := source.Meetings(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to fetch calendar events: %w", err)
		}
		merged, result := msgraph.MergeMeetings(a.Meetings(), fresh, meetingsSyncDryRun)
		printSyncChanges(result, a.Location())

		if !meetingsSyncDryRun {
			a.SetMeetings(merged)
			if err := a.Save(); err != nil {
				return err
			}
		}

		fmt.Println()
		fmt.Println("Summary:")
		fmt.Printf("  %d imported\n", result.Imported)
		fmt.Printf("  %d skipped\n", result.Skipped)
		fmt.Printf("  %d updated\n", result.Updated)
		if result.Errors > 0 {
			fmt.Printf("  %d errors\n", result.Errors)
			return fmt.Errorf("%d event(s) could not be imported", result.Errors)
		}
		return nil
	})
}

func printSyncChanges(res msgraph.SyncResult, loc *time.Location) {
	for _, c := range res.Changes {
		when := ""
		if !c.Meeting.Start.IsZero() {
			when = c.Meeting.Start.In(loc).Format("2006-01-02 15:04") + " "
		}
		switch c.Action {
		case msgraph.ActionImported:
			fmt.Printf("  ✓ Imported  %s%s\n", when, c.Subject)
		case msgraph.ActionUpdated:
			fmt.Printf("  ↑ Updated   %s%s\n", when, c.Subject)
		case msgraph.ActionSkipped:
			fmt.Printf("  – Skipped   %s%s (unchanged)\n", when, c.Subject)
		case msgraph.ActionError:
			fmt.Printf("  ! Error     %s: %v\n", c.Subject, c.Err)
		}
	}
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Coding sessions recorded from repository activity",
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import coding sessions from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var sessions []model.Session
		if err := json.Unmarshal(data, &sessions); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		for i, s := range sessions {
			if s.ID == "" {
				sessions[i].ID = timecalc.GenerateID(s.Start)
			}
			if !s.End.After(s.Start) {
				return fmt.Errorf("session %d (%s) ends before it starts", i, s.Repo)
			}
		}
		return withApp(func(a *app.App) error {
			added := a.AddSessions(sessions)
			if err := a.Save(); err != nil {
				return err
			}
			fmt.Printf("✓ Imported %d session(s), %d already known\n", added, len(sessions)-added)
			return nil
		})
	},
}

var sessionsListRange rangeFlags

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded coding sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			from, to, err := sessionsListRange.resolve(time.Now(), a.Location(), true)
			if err != nil {
				return err
			}
			loc := a.Location()
			n := 0
			for _, s := range a.Sessions() {
				if s.Start.Before(from) || !s.Start.Before(to) {
					continue
				}
				n++
				fmt.Printf("%s–%s  %-20s %v  %s\n",
					s.Start.In(loc).Format("2006-01-02 15:04"), s.End.In(loc).Format("15:04"),
					s.Repo, s.IssueKeys, s.Description)
			}
			if n == 0 {
				fmt.Println("No sessions found.")
			}
			return nil
		})
	},
}

func init() {
	sessionsListRange.register(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsImportCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
}
