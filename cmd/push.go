package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/jira"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/notify"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

var pushDryRun bool

var pushCmd = &cobra.Command{
	Use:   "push [id]...",
	Short: "Push staged entries to Jira (all staged entries by default)",
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "Show what would be pushed")
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		ids := args
		if len(ids) == 0 {
			for _, e := range a.Store.ByStatus(model.StatusStaged) {
				ids = append(ids, e.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("Nothing staged.")
			return nil
		}
		if pushDryRun {
			fmt.Printf("Would push %d entr(ies) [dry-run]:\n", len(ids))
			for _, id := range ids {
				e, err := a.Store.Get(id)
				if err != nil {
					fmt.Printf("  ! %s: %v\n", id, err)
					continue
				}
				fmt.Println("  " + formatEntry(e, a.Location()))
			}
			return nil
		}

		remote, err := a.Jira(ctx)
		if err != nil {
			return err
		}
		res, err := pushEntries(ctx, a, remote, ids)
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d of %d entries failed to push", len(res.Failed), len(ids))
		}
		return nil
	})
}

// pushEntries pushes ids with progress on stdout and posts a summary.
func pushEntries(ctx context.Context, a *app.App, remote worklog.RemoteLedger, ids []string) (worklog.PushResult, error) {
	fmt.Printf("Pushing %d entr(ies) to Jira...\n\n", len(ids))
	rec := a.Reconciler(remote, worklog.WithProgress(printProgress(a)))
	res, err := rec.Push(ctx, ids)

	var batch *model.Batch
	if res.BatchID != "" {
		if b, gerr := a.Ledger.Get(res.BatchID); gerr == nil {
			batch = &b
		}
	}
	summary := notify.PushSummary(res, batch)
	fmt.Println()
	fmt.Println(summary)
	if batch != nil {
		fmt.Printf("Revert with: wsync revert %s --confirm %s\n", batch.ID, timecalc.FormatHours(batch.TotalSeconds))
	}
	if res.Canceled {
		fmt.Fprintln(os.Stderr, "Interrupted: remaining entries stay staged.")
	}
	if len(res.Succeeded) > 0 {
		if perr := a.Notifier().Post(context.WithoutCancel(ctx), summary); perr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", perr)
		}
	}
	return res, err
}

// failureHint tells the user whether a failed entry is worth retrying as is.
func failureHint(err error) string {
	if jira.IsRetryable(err) {
		return " (network problem; entry stays staged, retry later)"
	}
	return ""
}

func printProgress(a *app.App) func(worklog.Progress) {
	return func(p worklog.Progress) {
		prefix := fmt.Sprintf("  [%d/%d]", p.Index, p.Total)
		switch {
		case p.Err == nil && p.Op == "revert":
			fmt.Printf("%s ✓ Reverted %s (%s)\n", prefix, p.IssueKey, p.EntryID)
		case p.Err == nil:
			secs := int64(0)
			if e, err := a.Store.Get(p.EntryID); err == nil {
				secs = e.DurationSeconds
			}
			fmt.Printf("%s ✓ Pushed   %s %s (%s)\n", prefix, p.IssueKey, timecalc.FormatDuration(secs), p.EntryID)
		case model.IsTransition(p.Err):
			fmt.Printf("%s – Skipped  %s: %v\n", prefix, p.EntryID, p.Err)
		default:
			fmt.Printf("%s ! Failed   %s %s: %v%s\n", prefix, p.IssueKey, p.EntryID, p.Err, failureHint(p.Err))
		}
	}
}
